package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrMalformedScript = errors.New("malformed script file")
	ErrNotebookParse   = errors.New("notebook parse error")
	ErrExecution       = errors.New("execution failed")
)
