package robust

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned by setters and constructors for values
	// out of range. The receiver is left unchanged.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotReady is returned by Estimate when data or quality scores are
	// missing.
	ErrNotReady = errors.New("estimator not ready")
	// ErrLocked is returned when an estimator is mutated or re-run while an
	// estimation is in progress.
	ErrLocked = errors.New("estimator locked")
	// ErrEstimationFailed is returned when no candidate model survived.
	ErrEstimationFailed = errors.New("robust estimation failed")
)

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
