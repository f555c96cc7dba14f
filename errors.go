package tasktree

import "errors"

var (
	ErrNotFound          = errors.New("tasktree: node not found")
	ErrInvalidMove       = errors.New("tasktree: move would create a cycle")
	ErrGoalNotFound      = errors.New("tasktree: goal not found")
	ErrMalformedResponse = errors.New("tasktree: malformed response payload")
)
