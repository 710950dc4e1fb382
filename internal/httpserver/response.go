package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

// Envelope wraps every JSON response body.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c echo.Context, code int, data any, message string) error {
	return c.JSON(code, Envelope{
		StatusCode: code,
		Data:       data,
		Message:    message,
		Success:    code < http.StatusBadRequest,
	})
}

// ErrorHandler renders any handler error as an envelope. Causes of internal
// errors go to the log only.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		appErr  *apperr.Error
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &appErr):
	case errors.As(err, &httpErr):
		appErr = apperr.FromStatus(httpErr.Code, httpMessage(httpErr))
	default:
		appErr = apperr.As(err)
	}

	code := appErr.HTTPStatus()
	if code >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request_failed", "status", code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = respond(c, code, nil, appErr.Message)
}

func httpMessage(e *echo.HTTPError) string {
	switch m := e.Message.(type) {
	case string:
		return m
	case nil:
		return http.StatusText(e.Code)
	default:
		return fmt.Sprint(m)
	}
}
