package httpapi

import (
	"errors"
	"net/http"

	"dbconsole/internal/backend"
	"dbconsole/internal/console"
	"dbconsole/internal/schedules"
	"dbconsole/internal/storage"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/cronconv"
	"dbconsole/pkg/logx"

	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Error  string              `json:"error"`
	Fields []wizard.FieldError `json:"fields,omitempty"`
}

func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, wizard.ErrInvalid),
		errors.Is(err, console.ErrInvalid),
		errors.Is(err, schedules.ErrInvalid),
		errors.Is(err, cronconv.ErrParse),
		errors.Is(err, cronconv.ErrTimezone),
		errors.Is(err, storage.ErrBadID):
		return http.StatusBadRequest
	case errors.Is(err, schedules.ErrNotFound),
		errors.Is(err, backend.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedules.ErrDuplicateName),
		errors.Is(err, schedules.ErrPolicy),
		errors.Is(err, backend.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(code)
		}
	}
	var ve *wizard.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Result.Errors
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logx.String("method", c.Request().Method),
			logx.String("path", c.Path()),
			logx.Err(err),
		)
		if code == http.StatusInternalServerError {
			body.Error = http.StatusText(code)
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		s.log.Warn("write error response", logx.Err(err))
	}
}
