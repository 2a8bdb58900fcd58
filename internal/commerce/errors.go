package commerce

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a product, handle or GID does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInCollection is returned by AddToCollection when the product
	// is already a member. Callers treat it as success.
	ErrAlreadyInCollection = errors.New("already in collection")
)

// StatusError is a non-2xx response from a remote API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
}

// HTTPStatus exposes the status code to the retry classifier.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// UserError is a field-level rejection returned by the platform.
type UserError struct {
	Field   []string
	Message string
}

// UserErrors is returned when the platform accepts a request but rejects
// some of its fields.
type UserErrors []UserError

func (e UserErrors) Error() string {
	parts := make([]string, len(e))
	for i, ue := range e {
		if len(ue.Field) > 0 {
			parts[i] = strings.Join(ue.Field, ".") + ": " + ue.Message
		} else {
			parts[i] = ue.Message
		}
	}
	return "user errors: " + strings.Join(parts, "; ")
}
