// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chaterr defines the error taxonomy shared by the streaming core.
//
// Network and stream-read errors terminate a stream session. Decode and
// stale-target errors are recovered by the component that detects them and
// never reach the user.
package chaterr

import (
	"errors"

	"github.com/jeranaias/streamchat/internal/util"
)

// Kind categorizes streaming errors for handling.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork: the request could not be sent, or the response status was
	// not a success, before any body bytes were read.
	KindNetwork
	// KindStreamRead: the response body failed mid-stream.
	KindStreamRead
	// KindDecode: a tagged frame carried a malformed payload.
	KindDecode
	// KindStaleTarget: the bound conversation no longer exists.
	KindStaleTarget
)

// String returns the name used in logs.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStreamRead:
		return "stream_read"
	case KindDecode:
		return "decode"
	case KindStaleTarget:
		return "stale_target"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for the streaming core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// Sentinels for errors.Is checks. They match any error of the same kind.
var (
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrStreamRead  = &Error{Kind: KindStreamRead}
	ErrStaleTarget = &Error{Kind: KindStaleTarget}
)

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Network wraps a transport failure.
func Network(message string, cause error) *Error {
	return New(KindNetwork, message, cause)
}

// StreamRead wraps a mid-stream body failure.
func StreamRead(cause error) *Error {
	return New(KindStreamRead, "stream read failed", cause)
}

// Decode wraps a malformed frame payload.
func Decode(line string, cause error) *Error {
	return New(KindDecode, "malformed frame "+quoteShort(line), cause)
}

// StaleTarget reports that a conversation is gone.
func StaleTarget(conversationID string) *Error {
	return New(KindStaleTarget, "conversation "+conversationID+" no longer exists", nil)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func quoteShort(s string) string {
	return "\"" + util.TruncateRunes(s, 64) + "\""
}
