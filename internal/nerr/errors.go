// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nerr provides the structured error taxonomy used across the
// nipart core (spec §7): every error surfaced by the state model, the
// merge engine, the scheduler, or a provider is classified under one of a
// fixed set of Kinds so that callers can decide whether to retry, roll
// back, or simply report the failure to the user.
package nerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per the taxonomy in spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidArgument is caller-visible: desired state violates schema
	// or semantics. Never retried.
	KindInvalidArgument
	// KindVerificationError means apply succeeded but post-state differs;
	// triggers retry then rollback.
	KindVerificationError
	// KindNoSupport is a requested feature unavailable in the selected
	// provider.
	KindNoSupport
	// KindPluginFailure is a provider-reported failure; may be retried by
	// task retry policy.
	KindPluginFailure
	// KindIpcFailure is a transport-level failure.
	KindIpcFailure
	// KindIpcClosed means the IPC connection was closed.
	KindIpcClosed
	// KindIpcMessageTooLarge means a frame exceeded the maximum size.
	KindIpcMessageTooLarge
	// KindTimeout means a deadline was exceeded.
	KindTimeout
	// KindPermissionDeny means a privileged operation was refused by the OS.
	KindPermissionDeny
	// KindBug is an internal invariant violation; always logged, surfaced
	// to the user.
	KindBug
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindVerificationError:
		return "verification_error"
	case KindNoSupport:
		return "no_support"
	case KindPluginFailure:
		return "plugin_failure"
	case KindIpcFailure:
		return "ipc_failure"
	case KindIpcClosed:
		return "ipc_closed"
	case KindIpcMessageTooLarge:
		return "ipc_message_too_large"
	case KindTimeout:
		return "timeout"
	case KindPermissionDeny:
		return "permission_deny"
	case KindBug:
		return "bug"
	default:
		return "unknown"
	}
}

// CanRetry reports whether a task failing with this Kind may be retried
// per its retry policy (spec §7: InvalidArgument is never retried).
func (k Kind) CanRetry() bool {
	switch k {
	case KindInvalidArgument, KindBug:
		return false
	default:
		return true
	}
}

// Error is a structured error carrying a Kind, a message, an optional
// underlying cause, and free-form attributes (e.g. the offending interface
// name, or the MTU bound that was violated).
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the given Kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the given Kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the given Kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps an existing error as a new Error of the given Kind with a
// formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// Attr attaches an attribute to an error. If err is not already an *Error,
// it is wrapped as KindBug first.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindBug, Message: err.Error(), Underlying: err}
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of err, or KindUnknown if err is not a nipart
// Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetAttributes collects all attributes from err's chain, innermost values
// losing to outer ones on key collision.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error
	cur := err
	for cur != nil {
		if errors.As(cur, &e) {
			for k, v := range e.Attributes {
				if _, ok := attrs[k]; !ok {
					attrs[k] = v
				}
			}
			cur = e.Underlying
		} else {
			break
		}
	}
	return attrs
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
