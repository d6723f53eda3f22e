package cryptodash

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// DatasetMissingMarker is the fragment the server puts in the detail of a
// search failure when the catalog has never been built.
const DatasetMissingMarker = "est introuvable"

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
}

// IsConflict reports whether err is a 409 from the server, which for
// POST /api/refresh-data means a job is already running.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsDatasetMissing reports whether err signals that the catalog does not
// exist yet and a refresh should be started.
func IsDatasetMissing(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= http.StatusInternalServerError &&
		strings.Contains(apiErr.Detail, DatasetMissingMarker)
}

// DetailOrDefault returns the server-provided detail of err, or fallback
// when err carries none.
func DetailOrDefault(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
