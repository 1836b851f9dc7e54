package domain

import "errors"

var (
	// Workspace errors
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// Document errors
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidDocumentState = errors.New("invalid document state transition")

	// Bundle errors
	ErrBundleNotFound      = errors.New("field bundle not found")
	ErrBundleNameConflict  = errors.New("field bundle name already exists")

	// Field errors
	ErrFieldNotFound      = errors.New("field not found")
	ErrFieldNameConflict  = errors.New("field name already exists in bundle")
	ErrFieldHasChildren   = errors.New("field has dependent child fields")
	ErrDependencyCycle    = errors.New("dependent field cycle detected")
	ErrInvalidCastOptions = errors.New("cast field requires non-empty cast_options")
	ErrInvalidFormula     = errors.New("formula failed to parse")
	ErrInvalidDataType    = errors.New("invalid data type for dependent field")
	ErrBrokenFieldGraph   = errors.New("inconsistent parent/child field pointers")

	// FieldValue errors
	ErrFieldValueNotFound = errors.New("field value not found")

	// Task errors
	ErrTaskNotFound       = errors.New("task not found")
	ErrUnknownTaskName    = errors.New("unknown task name")

	// Workflow errors
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Common errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflicting concurrent update")
)
