package wire

import (
	"errors"
	"fmt"
)

type ErrorKind uint8

const (
	KindReplyPrefixMismatches ErrorKind = iota + 1
	KindReplyIsMissing
	KindReplyIsAmbiguous
	KindReplyCodeIsMissing
	KindReplyHasErrorString
	KindEventPrefixMismatches
	KindEventNameIsNotFound
)

var kindText = map[ErrorKind]string{
	KindReplyPrefixMismatches: "reply prefix mismatches",
	KindReplyIsMissing:        "reply is missing",
	KindReplyIsAmbiguous:      "reply is ambiguous",
	KindReplyCodeIsMissing:    "reply code is missing",
	KindReplyHasErrorString:   "reply has error string",
	KindEventPrefixMismatches: "event prefix mismatches",
	KindEventNameIsNotFound:   "event name is not found",
}

func (k ErrorKind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return fmt.Sprintf("wire error %d", uint8(k))
}

// Error is a wire level failure. Two errors match with errors.Is when their
// kinds are equal, whatever the detail message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrReplyPrefixMismatches = &Error{Kind: KindReplyPrefixMismatches}
	ErrReplyIsMissing        = &Error{Kind: KindReplyIsMissing}
	ErrReplyIsAmbiguous      = &Error{Kind: KindReplyIsAmbiguous}
	ErrReplyCodeIsMissing    = &Error{Kind: KindReplyCodeIsMissing}
	ErrReplyHasErrorString   = &Error{Kind: KindReplyHasErrorString}
	ErrEventPrefixMismatches = &Error{Kind: KindEventPrefixMismatches}
	ErrEventNameIsNotFound   = &Error{Kind: KindEventNameIsNotFound}
)

// ReplyHasErrorString wraps the error string carried by a failed reply.
func ReplyHasErrorString(msg string) error {
	return &Error{Kind: KindReplyHasErrorString, Msg: msg}
}

// ReplyIsMissing reports a reply that never arrived, msg says why.
func ReplyIsMissing(msg string) error {
	return &Error{Kind: KindReplyIsMissing, Msg: msg}
}

// ErrorString returns the message carried by a ReplyHasErrorString error.
func ErrorString(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindReplyHasErrorString {
		return e.Msg, true
	}
	return "", false
}
