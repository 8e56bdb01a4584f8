package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/apperr"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError maps service errors onto echo errors. Internal errors keep a
// generic message; the cause is logged by the error handler.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	kind := apperr.KindOf(err)
	return echo.NewHTTPError(statusOf(kind), apperr.MessageOf(err)).SetInternal(err)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := toHTTPError(err)

	msg, ok := he.Message.(string)
	if !ok {
		msg = http.StatusText(he.Code)
	}

	ctx := c.Request().Context()
	switch {
	case he.Code >= http.StatusInternalServerError:
		s.logger.Error(ctx, "request failed",
			zap.Int("status", he.Code),
			zap.String("path", c.Path()),
			zap.Error(err))
	case he.Internal != nil:
		s.logger.Debug(ctx, "request rejected",
			zap.Int("status", he.Code),
			zap.String("path", c.Path()),
			zap.Error(he.Internal))
	}

	body := ErrorResponse{StatusCode: he.Code, Message: msg, Error: http.StatusText(he.Code)}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, body)
	}
	if err != nil {
		s.logger.Warn(ctx, "writing error response failed", zap.Error(err))
	}
}
