// Package errs defines the error taxonomy shared by the job lifecycle
// controller, the trial resolver, and the artifact collector, plus the exit
// codes the CLI maps them to.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrProviderInvocation = fmt.Errorf("provider invocation failed")
	ErrParse              = fmt.Errorf("malformed provider output")
	ErrUnsupportedVersion = fmt.Errorf("unsupported runtime version")
	ErrInvalidSource      = fmt.Errorf("source is not a remote storage URI")
	ErrNotFound           = fmt.Errorf("not found")
	ErrMissingMetric      = fmt.Errorf("trial is missing a final metric")
	ErrNoTrials           = fmt.Errorf("job has no trials")
	ErrTimeoutExceeded    = fmt.Errorf("timed out waiting for job to finish")
	ErrNoJobRegistered    = fmt.Errorf("no job has been submitted this session")
)

func IsProviderInvocation(err error) bool {
	return errors.Cause(err) == ErrProviderInvocation
}

func IsParse(err error) bool {
	return errors.Cause(err) == ErrParse
}

func IsUnsupportedVersion(err error) bool {
	return errors.Cause(err) == ErrUnsupportedVersion
}

func IsInvalidSource(err error) bool {
	return errors.Cause(err) == ErrInvalidSource
}

func IsNotFound(err error) bool {
	c := errors.Cause(err)
	return c == ErrNotFound || c == ErrNoJobRegistered
}

func IsMissingMetric(err error) bool {
	return errors.Cause(err) == ErrMissingMetric
}

func IsNoTrials(err error) bool {
	return errors.Cause(err) == ErrNoTrials
}

func IsTimeoutExceeded(err error) bool {
	return errors.Cause(err) == ErrTimeoutExceeded
}

// ExitCode maps an error to the CLI's exit status. Zero is reserved for
// success.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsParse(err):
		return 2
	case IsUnsupportedVersion(err):
		return 3
	case IsInvalidSource(err), IsNotFound(err):
		return 4
	case IsMissingMetric(err), IsNoTrials(err):
		return 5
	case IsTimeoutExceeded(err):
		return 6
	default:
		return 1
	}
}
