package util

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/driftflow/driftflow/internal/codec"
)

// decodeJSON drains and closes rc, then unmarshals into T.
func decodeJSON[T any](rc io.ReadCloser) (T, error) {
	var data T
	body, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return data, fmt.Errorf("read body: %w", err)
	}
	if err := codec.Unmarshal(body, &data); err != nil {
		return data, fmt.Errorf("decode json: %w", err)
	}
	return data, nil
}

// DecodeJSONBody decodes an incoming request body into T.
func DecodeJSONBody[T any](r *http.Request) (T, error) {
	return decodeJSON[T](r.Body)
}

// DecodeJSONBodyResponse decodes a received response body into T.
func DecodeJSONBodyResponse[T any](r *http.Response) (T, error) {
	return decodeJSON[T](r.Body)
}

// WriteJSONResponse writes data as a JSON body under the given status. The
// status line is already gone if encoding fails, so the failure is only logged.
func WriteJSONResponse[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := codec.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
