package runtime

import (
	"context"
	"errors"

	"github.com/justapithecus/es2json/store"
	"github.com/justapithecus/es2json/types"
)

// Process exit codes. A run with misses but no failure exits 0.
const (
	ExitCodeSuccess       = 0
	ExitCodeFailure       = 1 // store, I/O or sink failure
	ExitCodeConfig        = 2
	ExitCodeIndexNotFound = 3
	ExitCodeCanceled      = 4
)

// SinkError marks a failure to deliver records or to persist the idfile.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return "sink: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *SinkError) Unwrap() error {
	return e.Err
}

// DetermineOutcome classifies the error that ended a run.
// A nil error is success. Cancellation wins over everything else because a
// canceled store call surfaces as a store error too.
func DetermineOutcome(err error) *types.RunOutcome {
	if err == nil {
		return &types.RunOutcome{
			Status:  types.OutcomeSuccess,
			Message: "run completed successfully",
		}
	}

	status := types.OutcomeStoreFailure
	var sinkErr *SinkError
	switch {
	case errors.Is(err, context.Canceled):
		status = types.OutcomeCanceled
	case types.IsConfigError(err):
		status = types.OutcomeConfigError
	case errors.Is(err, store.ErrIndexNotFound):
		status = types.OutcomeIndexNotFound
	case errors.As(err, &sinkErr):
		status = types.OutcomeSinkFailure
	}
	return &types.RunOutcome{Status: status, Message: err.Error()}
}

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeConfigError:
		return ExitCodeConfig
	case types.OutcomeIndexNotFound:
		return ExitCodeIndexNotFound
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeFailure
	}
}
