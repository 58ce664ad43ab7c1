package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from the Rally API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rally api: status %d: %s", e.Code, e.Body)
}

// IsUnauthorized reports whether err is a 401 response. Unauthorized
// failures are expected during logout races and must not be surfaced the
// way other failures are.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}
