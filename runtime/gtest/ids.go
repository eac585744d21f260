package gtest

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/kanengo/rigging/runtime/scale"
)

// DefaultUser is the sender of an Env unless overridden. NewSystem mints it
// DefaultUserBalance.
var DefaultUser = UserID(42)

// UserID returns the id of a test user numbered n.
func UserID(n uint64) scale.ActorID {
	var id scale.ActorID
	binary.LittleEndian.PutUint64(id[:], n)
	return id
}

// CodeIDOf derives the code id of a program from its name.
func CodeIDOf(name string) scale.CodeID {
	return scale.CodeID(blake2b.Sum256(append([]byte("code:"), name...)))
}

// ProgramIDOf derives the id a program activated from code with salt gets.
func ProgramIDOf(code scale.CodeID, salt []byte) scale.ActorID {
	buf := make([]byte, 0, len(code)+len(salt))
	buf = append(append(buf, code[:]...), salt...)
	return scale.ActorID(blake2b.Sum256(buf))
}

func messageID(nonce uint64) scale.MessageID {
	var buf [16]byte
	copy(buf[:8], "message:")
	binary.LittleEndian.PutUint64(buf[8:], nonce)
	return scale.MessageID(blake2b.Sum256(buf[:]))
}
