package bizerror

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("record not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrTooManyRequests = errors.New("too many requests")

	ErrUnknownEntityType     = errors.New("unknown entity type")
	ErrInvalidStepOrder      = errors.New("step orders must be unique, 1-based and gapless")
	ErrCommentRequired       = errors.New("comment is required")
	ErrStaleWorkflowState    = errors.New("workflow state has been changed concurrently")
	ErrStepNotInTemplate     = errors.New("step does not belong to the template")
	ErrTemplateIsReferenced  = errors.New("workflow template is referenced")
	ErrDefaultTemplateExists = errors.New("default template already exists for the module")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}
