// Package urandom 提供并发安全的非加密随机数
package urandom

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

var pool = sync.Pool{
	New: func() any {
		return rand.New(rand.NewSource(seed()))
	},
}

func seed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]) >> 1)
}

func Float64() float64 {
	r := pool.Get().(*rand.Rand)
	defer pool.Put(r)

	return r.Float64()
}

// Jitter shortens d by a random fraction of at most frac.
func Jitter(d time.Duration, frac float64) time.Duration {
	return time.Duration(float64(d) * (1 - frac*Float64()))
}
