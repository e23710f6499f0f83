package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "waitgate/pkg/errors"
)

// DecodeJSON reads a single JSON object from the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("Request body is required")
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apperrors.InvalidInput("Request body too large")
		}
		return apperrors.InvalidInput("Invalid request body")
	}

	if decoder.More() {
		return apperrors.InvalidInput("Request body must contain a single JSON object")
	}
	return nil
}
