package proxycache

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Upstream-compatible error codes used in proxy generated bodies.
const (
	ErrCodeInvalidMethod    = 3
	ErrCodeMissingParameter = 6
	ErrCodeInvalidAPIKey    = 8
	ErrCodeNotReady         = 16
)

const (
	StatusTextOK        = "OK"
	StatusTextCached    = "OK - Using previously cached response"
	StatusTextNotReady  = "Not ready. Successful response not available in proxy cache"
	StatusTextNoAPIKey  = "API key not defined in proxy"
	StatusTextNoMethod  = "Method not specified"
	StatusTextBadMethod = "Specified method not available in proxy"
)

// Envelope is a complete response for the transport layer to write.
type Envelope struct {
	Body       string
	Status     int
	StatusText string
	Header     http.Header
}

type errorBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func errorJSON(code int, message string) string {
	b, err := json.Marshal(errorBody{Error: code, Message: message})
	if err != nil {
		return fmt.Sprintf(`{"error":%d}`, code)
	}
	return string(b)
}

func apiKeyMissing(header http.Header) Envelope {
	return Envelope{
		Body:       errorJSON(ErrCodeInvalidAPIKey, "API key not defined"),
		Status:     http.StatusNotFound,
		StatusText: StatusTextNoAPIKey,
		Header:     header,
	}
}

func methodError(method string, header http.Header) Envelope {
	if method == "" {
		return Envelope{
			Body:       errorJSON(ErrCodeMissingParameter, "Method not specified"),
			Status:     http.StatusBadRequest,
			StatusText: StatusTextNoMethod,
			Header:     header,
		}
	}

	return Envelope{
		Body:       errorJSON(ErrCodeInvalidMethod, fmt.Sprintf("Specified method '%s' not available in proxy", method)),
		Status:     http.StatusNotFound,
		StatusText: StatusTextBadMethod,
		Header:     header,
	}
}

func notReady(header http.Header) Envelope {
	return Envelope{
		Body:       errorJSON(ErrCodeNotReady, "Not ready. Try again later"),
		Status:     http.StatusTooEarly,
		StatusText: StatusTextNotReady,
		Header:     header,
	}
}
