package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrJobTerminal   = errors.New("job is in a terminal state")
	ErrJobRunning    = errors.New("job is already running")
	ErrUnknownDriver = errors.New("unknown datasource driver")
	ErrMissingPrompt = errors.New("prompt template not configured")
)
