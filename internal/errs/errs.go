// Package errs defines the failure taxonomy shared by the asset pipeline and
// the HTTP boundary.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure so the boundary can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindBadInput
	KindNotFound
	KindUnauthorized
	KindConflict
	KindNotImplemented
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotImplemented:
		return "not_implemented"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// Error is a classified failure. Fields is only populated for KindBadInput and
// maps a dotted request field path to a message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindBadInput && len(e.Fields) > 0 {
		msg = formatFields(e.Fields)
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	if msg == "" {
		return e.Kind.String()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone: errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Fields == nil && t.Err == nil && t.Kind == e.Kind
}

// BadInput reports a single invalid request field.
func BadInput(field, message string) *Error {
	return &Error{Kind: KindBadInput, Fields: map[string]string{field: message}}
}

// BadInputFields reports several invalid request fields at once.
func BadInputFields(fields map[string]string) *Error {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &Error{Kind: KindBadInput, Fields: copied}
}

// NotFound reports a missing (or soft-deleted) resource.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("<%s> with ID <%s> not found", resource, id)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func NotImplemented(message string) *Error {
	return &Error{Kind: KindNotImplemented, Message: message}
}

// StorageUnavailable wraps the last error seen by an exhausted retry loop.
func StorageUnavailable(message string, cause error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: message, Err: cause}
}

func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

// Internalf wraps cause as an internal failure.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first classified error in err's chain and
// false when err carries no classification.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternal, false
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FieldsOf returns the field map of a BadInput error, or nil.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindBadInput {
		return e.Fields
	}
	return nil
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}
