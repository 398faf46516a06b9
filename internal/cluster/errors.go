package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the cluster answers 404 for the addressed resource.
	ErrNotFound = errors.New("resource not found")
	// ErrSnapshotExists is returned when snapshot creation is rejected with 400,
	// which the engine uses for a name that is already taken in the repository.
	ErrSnapshotExists = errors.New("snapshot already exists")
)

// StatusError is returned for any response status the caller did not expect.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status code: %d - response: %s", e.Method, e.Path, e.Code, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 if err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
