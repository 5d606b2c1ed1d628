package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-2xx backend response. The message is taken from the
// error body when the backend sent one.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned HTTP %d", e.Status)
}

// Retryable reports whether the failure is worth another attempt. Client
// errors are permanent; server errors and 429 throttling are not.
func (e *StatusError) Retryable() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func newStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return statusErr
	}

	var errBody struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errBody) == nil {
		if errBody.Error != "" {
			statusErr.Message = errBody.Error
		} else if errBody.Message != "" {
			statusErr.Message = errBody.Message
		}
	}
	return statusErr
}
