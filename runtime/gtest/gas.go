package gtest

import "github.com/kanengo/rigging/internal/umath"

// Deterministic gas schedule. Every message pays the base cost plus a cost
// per payload byte before its handler runs.
const (
	GasPerMessage uint64 = 1_000_000
	GasPerByte    uint64 = 1_000
	GasPerSend    uint64 = 500_000
	GasPerEmit    uint64 = 200_000
	GasPerReply   uint64 = 100_000

	// DefaultGasLimit is used for messages sent without a gas limit.
	DefaultGasLimit uint64 = 100_000_000_000
)

func messageCost(payload []byte) uint64 {
	return umath.SaturatingAdd(GasPerMessage, umath.SaturatingMul(GasPerByte, uint64(len(payload))))
}
