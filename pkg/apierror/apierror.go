// Package apierror maps core error kinds to transport-level errors.
//
// The engine reports failures as values carrying an error kind; the HTTP
// facade translates kinds to status codes and a {status:"fail", reason}
// envelope. Built on the kratos errors package so every error carries a
// machine-readable reason alongside its HTTP code.
package apierror

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// HTTP codes used by the facade.
const (
	CodeBadRequest       = 400
	CodeForbidden        = 403
	CodeNotFound         = 404
	CodeConflict         = 409
	CodeDependentChild   = 424
	CodeValidation       = 422
	CodeInternal         = 500
	CodeUnavailable      = 503
)

// NewBadRequest reports a malformed payload.
func NewBadRequest(reason, message string) *errors.Error {
	return errors.BadRequest(reason, message)
}

// NewPermissionDenied reports a missing workspace role.
func NewPermissionDenied(message string) *errors.Error {
	return errors.Forbidden("PERMISSION_DENIED", message)
}

// NewNotFound reports an unknown workspace/bundle/field/document.
func NewNotFound(reason, message string) *errors.Error {
	return errors.NotFound(reason, message)
}

// NewConflict reports a duplicate name within scope.
func NewConflict(reason, message string) *errors.Error {
	return errors.Conflict(reason, message)
}

// NewValidation reports an invalid payload or unsupported operator.
func NewValidation(reason, message string) *errors.Error {
	return errors.New(CodeValidation, reason, message)
}

// NewDependentChildren reports a field deletion refused because child
// fields still depend on it.
func NewDependentChildren(message string) *errors.Error {
	return errors.New(CodeDependentChild, "DEPENDENT_CHILD_FIELDS", message)
}

// NewTransient reports a temporarily failing collaborator (broker,
// extraction service, store).
func NewTransient(reason, message string) *errors.Error {
	return errors.ServiceUnavailable(reason, message)
}

// NewFatal reports store corruption or another unrecoverable condition.
func NewFatal(reason, message string) *errors.Error {
	return errors.InternalServer(reason, message)
}

// HTTPStatus extracts the HTTP code from an error, defaulting to 500.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if e := errors.FromError(err); e != nil {
		return int(e.Code)
	}
	return CodeInternal
}

// Reason extracts the machine-readable reason, if any.
func Reason(err error) string {
	if e := errors.FromError(err); e != nil {
		return e.Reason
	}
	return ""
}
