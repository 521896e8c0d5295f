package cli

import (
	"errors"
	"strings"

	"github.com/oddrm/pse25/internal/client"
)

// Exit codes of bagctl.
const (
	ExitSuccess        = 0
	ExitRuntimeFailure = 1
	ExitInvalidUsage   = 2
	ExitNotFound       = 3
	ExitUnavailable    = 4
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func mapExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var coded *ExitError
	if errors.As(err, &coded) {
		return coded.Code
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 404:
			return ExitNotFound
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return ExitInvalidUsage
		}
		return ExitRuntimeFailure
	}
	message := err.Error()
	if strings.Contains(message, "unknown command") || strings.Contains(message, "unknown flag") ||
		strings.Contains(message, "accepts ") || strings.Contains(message, "invalid argument") {
		return ExitInvalidUsage
	}
	return ExitRuntimeFailure
}
