// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package monotone

import "fmt"

// Kind identifies the conceptual category of an Error. Most kinds are
// recovered internally (the retry loop swallows ConditionalUpdateFailed,
// the provisioning helpers swallow TableNotFound/TableAlreadyExists) and
// never reach a caller.
type Kind int

const (
	_ Kind = iota
	KindConditionalUpdateFailed
	KindTableNotFound
	KindTableAlreadyExists
	KindNoTableInfo
	KindUnrecognisedType
	KindMissingAttribute
	KindMalformedRow
	KindTicketNotFound
	KindBackendError
)

func (k Kind) String() string {
	switch k {
	case KindConditionalUpdateFailed:
		return "CONDITIONAL_UPDATE_FAILED"
	case KindTableNotFound:
		return "TABLE_NOT_FOUND"
	case KindTableAlreadyExists:
		return "TABLE_ALREADY_EXISTS"
	case KindNoTableInfo:
		return "NO_TABLE_INFO"
	case KindUnrecognisedType:
		return "UNRECOGNISED_TYPE"
	case KindMissingAttribute:
		return "MISSING_ATTRIBUTE"
	case KindMalformedRow:
		return "MALFORMED_ROW"
	case KindTicketNotFound:
		return "TICKET_NOT_FOUND"
	case KindBackendError:
		return "BACKEND_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Kind with context and, where applicable, the underlying
// backend error. It is the only error type this module defines; callers
// that need to branch on kind should use errors.As and inspect Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &monotone.Error{Kind: monotone.KindTicketNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ErrConditionalUpdateFailed signals a lost compare-and-swap round. Internal
// to the retry loops in internal/monotone/engine; a caller should never
// observe this.
func ErrConditionalUpdateFailed() *Error {
	return newErr(KindConditionalUpdateFailed, "conditional write lost the race", nil)
}

// ErrTableNotFound reports a missing namespace/table during provisioning.
func ErrTableNotFound(name string) *Error {
	return newErr(KindTableNotFound, "table not found: "+name, nil)
}

// ErrTableAlreadyExists reports that a namespace/table provisioning request
// raced an existing table; this is treated as success by ensure_namespace.
func ErrTableAlreadyExists(name string) *Error {
	return newErr(KindTableAlreadyExists, "table already exists: "+name, nil)
}

// ErrNoTableInfo reports a provisioning call that returned success without a
// table description attached, which this module treats as fatal.
func ErrNoTableInfo(name string) *Error {
	return newErr(KindNoTableInfo, "no table info returned for: "+name, nil)
}

// ErrUnrecognisedType reports that a row's Type discriminator did not match
// the entity kind the caller asked for (e.g. reading a QUEUE row as a
// counter).
func ErrUnrecognisedType(id, got, want string) *Error {
	return newErr(KindUnrecognisedType, fmt.Sprintf("id=%s has type=%q, want %q", id, got, want), nil)
}

// ErrMissingAttribute reports a row missing a required attribute.
func ErrMissingAttribute(id, attr string) *Error {
	return newErr(KindMissingAttribute, fmt.Sprintf("id=%s missing attribute %q", id, attr), nil)
}

// ErrMalformedRow reports a row attribute that could not be parsed.
func ErrMalformedRow(id, attr string, err error) *Error {
	return newErr(KindMalformedRow, fmt.Sprintf("id=%s attribute %q", id, attr), err)
}

// ErrTicketNotFound reports that processID is not a member of the queue.
func ErrTicketNotFound(processID string) *Error {
	return newErr(KindTicketNotFound, "no ticket for process_id "+processID, nil)
}

// ErrBackend wraps an opaque backend error that did not match any known
// conditional-failure or not-found shape, and must propagate verbatim.
func ErrBackend(err error) *Error {
	return newErr(KindBackendError, "backend error", err)
}
