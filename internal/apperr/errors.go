// Package apperr defines the error taxonomy shared across bc2as packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNoTimestamps  = errors.New("no timestamps available")
	ErrInvalidRecord = errors.New("invalid record")
)

// NotFoundError reports an expected local path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuthenticationError reports a rejected or malformed login exchange.
type AuthenticationError struct {
	Username string
	Reason   string
	Err      error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed for %q: %s", e.Username, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// MalformedTimestampError reports a timestamp with no recognizable YYYY-MM-DD date.
type MalformedTimestampError struct {
	Source string // report file the value came from
	File   string // file entry carrying the value, when known
	Value  string
}

func (e *MalformedTimestampError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("malformed timestamp %q for %s in %s", e.Value, e.File, e.Source)
	}
	return fmt.Sprintf("malformed timestamp %q in %s", e.Value, e.Source)
}

// RemoteCallError captures a failed backend call together with the raw response.
type RemoteCallError struct {
	Method     string
	Path       string
	StatusCode int    // 0 when the request never got a response
	Body       string // response excerpt
	Err        error
}

func (e *RemoteCallError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("remote call %s %s: %v", e.Method, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("remote call %s %s: status %d: %v: %s", e.Method, e.Path, e.StatusCode, e.Err, e.Body)
	default:
		return fmt.Sprintf("remote call %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// IsRemoteNotFound reports whether err is a RemoteCallError carrying HTTP 404.
func IsRemoteNotFound(err error) bool {
	var rce *RemoteCallError
	return errors.As(err, &rce) && rce.StatusCode == 404
}

// IsSessionLost reports whether err is a RemoteCallError showing the session
// token was rejected: 401 or 403, or 412 as ArchivesSpace answers for an
// expired or deleted session.
func IsSessionLost(err error) bool {
	var rce *RemoteCallError
	if !errors.As(err, &rce) {
		return false
	}
	switch rce.StatusCode {
	case 401, 403, 412:
		return true
	}
	return false
}
