package gateway

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"spotmarket/pkg/types"
)

type errorBody struct {
	Success bool            `json:"success"`
	Code    types.ErrorCode `json:"code,omitempty"`
	Detail  string          `json:"detail"`
}

// httpStatus maps the domain error taxonomy onto HTTP. Not-found errors
// share 404, conflicts 409, insufficient funds rides the auth family at
// 403, and anything unexpected is a 500.
func httpStatus(err error) int {
	var (
		userNotFound       *types.UserNotFoundError
		instrumentNotFound *types.InstrumentNotFoundError
		orderNotFound      *types.OrderNotFoundError
		exists             *types.InstrumentAlreadyExistsError
		insufficient       *types.InsufficientFundsError
		cannotCancel       *types.CannotCancelError
		timeout            *types.RequestTimeoutError
	)
	switch {
	case errors.As(err, &userNotFound),
		errors.As(err, &instrumentNotFound),
		errors.As(err, &orderNotFound):
		return http.StatusNotFound
	case errors.As(err, &exists):
		return http.StatusConflict
	case errors.As(err, &insufficient):
		return http.StatusForbidden
	case errors.As(err, &cannotCancel):
		return http.StatusBadRequest
	case errors.As(err, &timeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error as the JSON error body. Critical
// errors keep their message out of the response.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		detail, _ := httpErr.Message.(string)
		if detail == "" {
			detail = http.StatusText(httpErr.Code)
		}
		_ = c.JSON(httpErr.Code, errorBody{Detail: detail})
		return
	}

	status := httpStatus(err)
	body := errorBody{Code: types.EncodeError(err).Code, Detail: err.Error()}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
		body.Detail = "internal error"
	}
	_ = c.JSON(status, body)
}
