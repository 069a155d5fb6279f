package workflows

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not registered
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrStatusUnavailable is returned when run status cannot be tracked
	ErrStatusUnavailable = errors.New("status tracking requires DBOS runtime")

	// Job-fatal stages
	ErrAcquisition = errors.New("image acquisition failed")
	ErrDetection   = errors.New("detection failed")

	// Contained stages, logged and skipped
	ErrRegistration = errors.New("image registration failed")
	ErrAnnotation   = errors.New("annotation failed")
	ErrFilter       = errors.New("denoise filter failed")
	ErrHandler      = errors.New("result handler failed")
)

// Pipeline stages
const (
	StageAcquire  = "acquire"
	StageDetect   = "detect"
	StageRegister = "register"
	StageAnnotate = "annotate"
	StageFilter   = "filter"
	StageHandler  = "handler"
)

var stageErrors = map[string]error{
	StageAcquire:  ErrAcquisition,
	StageDetect:   ErrDetection,
	StageRegister: ErrRegistration,
	StageAnnotate: ErrAnnotation,
	StageFilter:   ErrFilter,
	StageHandler:  ErrHandler,
}

// StageError records which stage member failed. errors.Is matches both the
// stage sentinel and the underlying cause.
type StageError struct {
	Stage string
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	s, ok := stageErrors[e.Stage]
	return ok && s == target
}
