package graph

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

// HTTPError is a non-2xx Graph response.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
	// Mutating is set for writes, where a missing or changed target is a
	// conflict rather than a plain failure.
	Mutating bool
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case domain.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case domain.ErrTransient:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	case domain.ErrCursorStale:
		return e.StatusCode == http.StatusGone || e.Code == "syncStateNotFound" || e.Code == "resyncRequired"
	case domain.ErrConflict:
		if !e.Mutating {
			return false
		}
		switch e.StatusCode {
		case http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed:
			return true
		}
	}
	return false
}

var errForeignLink = errors.New("continuation link does not belong to the graph endpoint")
