package remoting

import "fmt"

// ReplyCode classifies a reply: byte 0 is success (0) or error (1), the
// following bytes refine the reason.
type ReplyCode [4]byte

type SuccessReason uint8

const (
	SuccessAuto SuccessReason = iota
	SuccessManual
)

type ErrorReason uint8

const (
	ErrorExecution ErrorReason = iota
	ErrorFailedToCreateProgram
	ErrorUnavailableActor
	ErrorRemovedFromWaitlist
	ErrorUnsupported ErrorReason = 255
)

type ExecutionReason uint8

const (
	RanOutOfGas ExecutionReason = iota
	MemoryOverflow
	BackendError
	UserspacePanic
	UnreachableInstruction
	StackLimitExceeded
)

type UnavailableReason uint8

const (
	ProgramExited UnavailableReason = iota
	InitializationFailure
	Uninitialized
	ProgramNotCreated
)

func SuccessCode(r SuccessReason) ReplyCode {
	return ReplyCode{0, byte(r)}
}

func ExecutionErrorCode(r ExecutionReason) ReplyCode {
	return ReplyCode{1, byte(ErrorExecution), byte(r)}
}

func UnavailableActorCode(r UnavailableReason) ReplyCode {
	return ReplyCode{1, byte(ErrorUnavailableActor), byte(r)}
}

func RemovedFromWaitlistCode() ReplyCode {
	return ReplyCode{1, byte(ErrorRemovedFromWaitlist)}
}

func UnsupportedCode() ReplyCode {
	return ReplyCode{1, byte(ErrorUnsupported)}
}

func (c ReplyCode) IsSuccess() bool { return c[0] == 0 }

func (c ReplyCode) IsError() bool { return c[0] == 1 }

func (c ReplyCode) IsExited() bool {
	return c == UnavailableActorCode(ProgramExited)
}

func (c ReplyCode) String() string {
	switch c[0] {
	case 0:
		if SuccessReason(c[1]) == SuccessManual {
			return "Success(Manual)"
		}
		return "Success(Auto)"
	case 1:
		switch ErrorReason(c[1]) {
		case ErrorExecution:
			return fmt.Sprintf("Error(Execution(%s))", executionNames[ExecutionReason(c[2])])
		case ErrorFailedToCreateProgram:
			return "Error(FailedToCreateProgram)"
		case ErrorUnavailableActor:
			return fmt.Sprintf("Error(UnavailableActor(%s))", unavailableNames[UnavailableReason(c[2])])
		case ErrorRemovedFromWaitlist:
			return "Error(RemovedFromWaitlist)"
		case ErrorUnsupported:
			return "Error(Unsupported)"
		}
	}
	return fmt.Sprintf("ReplyCode(%x)", c[:])
}

var executionNames = map[ExecutionReason]string{
	RanOutOfGas:            "RanOutOfGas",
	MemoryOverflow:         "MemoryOverflow",
	BackendError:           "BackendError",
	UserspacePanic:         "UserspacePanic",
	UnreachableInstruction: "UnreachableInstruction",
	StackLimitExceeded:     "StackLimitExceeded",
}

var unavailableNames = map[UnavailableReason]string{
	ProgramExited:         "ProgramExited",
	InitializationFailure: "InitializationFailure",
	Uninitialized:         "Uninitialized",
	ProgramNotCreated:     "ProgramNotCreated",
}
