package server

import (
	"errors"

	"docintel/internal/domain"
	"docintel/pkg/apierror"
)

// translate 把领域哨兵错误翻译成携带 HTTP 语义的错误; kratos 错误原样透传
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		return apierror.NewNotFound("WORKSPACE_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrDocumentNotFound):
		return apierror.NewNotFound("DOCUMENT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrBundleNotFound):
		return apierror.NewNotFound("BUNDLE_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrFieldNotFound):
		return apierror.NewNotFound("FIELD_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrFieldValueNotFound):
		return apierror.NewNotFound("FIELD_VALUE_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrTaskNotFound):
		return apierror.NewNotFound("TASK_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrWorkflowNotFound):
		return apierror.NewNotFound("WORKFLOW_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		return apierror.NewPermissionDenied(err.Error())
	case errors.Is(err, domain.ErrFieldNameConflict),
		errors.Is(err, domain.ErrBundleNameConflict),
		errors.Is(err, domain.ErrConflict):
		return apierror.NewConflict("NAME_CONFLICT", err.Error())
	case errors.Is(err, domain.ErrFieldHasChildren):
		return apierror.NewDependentChildren(err.Error())
	case errors.Is(err, domain.ErrDependencyCycle),
		errors.Is(err, domain.ErrInvalidCastOptions),
		errors.Is(err, domain.ErrInvalidFormula),
		errors.Is(err, domain.ErrInvalidDataType):
		return apierror.NewValidation("DEPENDENT_FIELD_INVALID", err.Error())
	case errors.Is(err, domain.ErrInvalidDocumentState):
		return apierror.NewConflict("DOCUMENT_STATE", err.Error())
	}
	return err
}
