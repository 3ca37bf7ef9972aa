package deploy

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every error returned by Orchestrator.Deploy is a
// *StageError that matches exactly one of these with errors.Is.
var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrInvalidRequest      = errors.New("invalid deploy request")
	ErrAccountNotFound     = errors.New("account not found")
	ErrNetwork             = errors.New("network error")
	ErrFeeEstimationFailed = errors.New("fee estimation failed")
	ErrBroadcastRejected   = errors.New("broadcast rejected")
)

// BroadcastRejectedError carries the raw node response of a rejected broadcast.
type BroadcastRejectedError struct {
	Payload string
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("broadcast rejected: %s", e.Payload)
}

// Is makes errors.Is(err, ErrBroadcastRejected) hold.
func (e *BroadcastRejectedError) Is(target error) bool {
	return target == ErrBroadcastRejected
}

// StageError records the stage a deployment stopped at.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
