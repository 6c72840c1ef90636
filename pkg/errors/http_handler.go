package errors

import (
	"net/http"

	"github.com/goccy/go-json"
)

// WriteError renders err as an ErrorResponse. Errors that are not AppErrors
// surface as a generic internal error so storage details never reach the client.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())

	response := ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}

	return json.NewEncoder(w).Encode(response)
}

func WriteSuccess(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Return error so caller can log - no recovery possible after WriteHeader
		return err
	}
	return nil
}
