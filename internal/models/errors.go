package models

import (
	"errors"
	"fmt"
)

// AuthenticationError reports that the upstream rejected the credentials.
// It aborts a harvest immediately and is never retried.
type AuthenticationError struct {
	URL    string
	Status int
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransientFetchError is a network failure or 5xx response for one page
// request. Page is the 1-based page number that failed.
type TransientFetchError struct {
	Page   int
	URL    string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch page %d: unexpected status %d", e.Page, e.Status)
	}
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// HarvestAbortedError is returned when a page could not be fetched within the
// retry budget. LastPage and LastURL identify the last page that succeeded;
// LastPage is 0 when the first page failed.
type HarvestAbortedError struct {
	LastPage int
	LastURL  string
	Err      error
}

func (e *HarvestAbortedError) Error() string {
	if e.LastPage == 0 {
		return fmt.Sprintf("harvest aborted before the first page: %v", e.Err)
	}
	return fmt.Sprintf("harvest aborted after page %d (%s): %v", e.LastPage, e.LastURL, e.Err)
}

func (e *HarvestAbortedError) Unwrap() error { return e.Err }

// MalformedEntityError marks a single raw entity that could not be parsed.
// The harvest skips the entity and continues.
type MalformedEntityError struct {
	Page  int
	Index int
	Err   error
}

func (e *MalformedEntityError) Error() string {
	return fmt.Sprintf("malformed entity %d on page %d: %v", e.Index, e.Page, e.Err)
}

func (e *MalformedEntityError) Unwrap() error { return e.Err }

// StateReadError means the state file exists but could not be read.
type StateReadError struct {
	Path string
	Err  error
}

func (e *StateReadError) Error() string {
	return fmt.Sprintf("read state %s: %v", e.Path, e.Err)
}

func (e *StateReadError) Unwrap() error { return e.Err }

// StateWriteError means the new state could not be committed. The result of
// the run is still valid; the next run recomputes the same diff.
type StateWriteError struct {
	Path string
	Err  error
}

func (e *StateWriteError) Error() string {
	return fmt.Sprintf("write state %s: %v", e.Path, e.Err)
}

func (e *StateWriteError) Unwrap() error { return e.Err }

// IsAuthentication reports whether err is an AuthenticationError.
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsAborted reports whether err is a HarvestAbortedError.
func IsAborted(err error) bool {
	var target *HarvestAbortedError
	return errors.As(err, &target)
}

// IsStateWrite reports whether err is a StateWriteError.
func IsStateWrite(err error) bool {
	var target *StateWriteError
	return errors.As(err, &target)
}
