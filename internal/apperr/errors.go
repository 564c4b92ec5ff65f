// Package apperr defines the failure taxonomy surfaced to API callers.
//
// Every failure the service reports carries a Kind with a stable numeric code
// and a human readable message. Leaf packages keep their own sentinel errors;
// services translate them into an *Error at the boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindSystem Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindNotAuthenticated
	KindPermission
	KindNotFound
	KindOperation
)

type kindInfo struct {
	code    int
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindValidation:       {40000, http.StatusBadRequest, "invalid parameters"},
	KindAuthentication:   {40001, http.StatusUnauthorized, "account or password incorrect"},
	KindNotAuthenticated: {40100, http.StatusUnauthorized, "not logged in"},
	KindPermission:       {40101, http.StatusForbidden, "no permission"},
	KindNotFound:         {40400, http.StatusNotFound, "resource not found"},
	KindConflict:         {40900, http.StatusConflict, "resource already exists"},
	KindSystem:           {50000, http.StatusInternalServerError, "system error"},
	KindOperation:        {50001, http.StatusInternalServerError, "operation failed"},
}

func (k Kind) info() kindInfo {
	if i, ok := kinds[k]; ok {
		return i
	}
	return kinds[KindSystem]
}

// Code is the stable envelope code for the kind.
func (k Kind) Code() int { return k.info().code }

// HTTPStatus is the transport status paired with the kind.
func (k Kind) HTTPStatus() int { return k.info().status }

// DefaultMessage is used when an error is created without a message.
func (k Kind) DefaultMessage() string { return k.info().message }

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.DefaultMessage()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package level sentinels work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// PublicMessage is the message safe to show to callers.
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.DefaultMessage()
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrPermission       = &Error{Kind: KindPermission}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrOperation        = &Error{Kind: KindOperation}
	ErrSystem           = &Error{Kind: KindSystem}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap keeps cause for logging while exposing only message to callers.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Validation(message string) *Error       { return New(KindValidation, message) }
func Conflict(message string) *Error         { return New(KindConflict, message) }
func Authentication(message string) *Error   { return New(KindAuthentication, message) }
func NotAuthenticated(message string) *Error { return New(KindNotAuthenticated, message) }
func Permission(message string) *Error       { return New(KindPermission, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func Operation(message string) *Error        { return New(KindOperation, message) }

// From classifies err. Unclassified errors become KindSystem with the
// underlying error kept as cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindSystem, Err: err}
}
