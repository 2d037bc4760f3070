package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/damacus/iron-explorer/internal/credentials"
	"github.com/damacus/iron-explorer/internal/errs"
	"github.com/damacus/iron-explorer/internal/utils"
	"github.com/labstack/echo/v4"
)

// GetCredentials retrieves and validates relay credentials from the context
func GetCredentials(c echo.Context) (*credentials.Credentials, error) {
	val := c.Get(utils.ContextKeyCreds)
	if val == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	creds, ok := val.(*credentials.Credentials)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return creds, nil
}

// StatusFor maps an error kind to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, credentials.ErrNoBuckets):
		return http.StatusUnauthorized
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsInvalidInput(err):
		return http.StatusBadRequest
	case errs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errs.IsConnectionFailed(err):
		return http.StatusBadGateway
	case errs.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errs.IsCancelled(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError writes err with the status of its kind. Not-found errors
// use notFound as their summary, everything else uses summary.
func respondError(c echo.Context, err error, summary, notFound string) error {
	status := StatusFor(err)
	body := errorResponse{Error: summary, Message: err.Error()}
	if status == http.StatusNotFound && notFound != "" {
		body.Error = notFound
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// expiresIn reads a TTL in seconds, falling back to def
func expiresIn(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
