package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/logger"
)

// ErrorResponse is the API error body. Error holds a field map for invalid
// input and a message otherwise.
type ErrorResponse struct {
	Error any    `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// StatusOf maps a classified error to its HTTP status.
func StatusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindBadInput:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders classified errors with their status and body. Echo
// errors keep their code; anything else is logged and reported as a generic
// internal error. Failures are logged with the request-scoped logger when the
// server installed one.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		base := log
		if scoped, ok := logger.Lookup(c.Request().Context()); ok {
			base = scoped
		}
		reqLog := base.With(slog.String("component", "http_errors"))
		status, body := render(reqLog, c, err)
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			reqLog.Error("write error response failed", slog.Any("error", werr))
		}
	}
}

func render(log *slog.Logger, c echo.Context, err error) (int, ErrorResponse) {
	var e *errs.Error
	if errors.As(err, &e) {
		status := StatusOf(e.Kind)
		switch e.Kind {
		case errs.KindBadInput:
			return status, ErrorResponse{Error: e.Fields, Kind: e.Kind.String()}
		case errs.KindInternal, errs.KindStorageUnavailable:
			log.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("uri", c.Request().RequestURI),
				slog.String("kind", e.Kind.String()),
				slog.Any("error", err),
			)
			return status, ErrorResponse{Error: internalMessage(e), Kind: e.Kind.String()}
		default:
			return status, ErrorResponse{Error: e.Message, Kind: e.Kind.String()}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			log.Error("request failed", slog.Any("error", err))
		}
		msg := he.Message
		if s, ok := msg.(string); ok {
			return he.Code, ErrorResponse{Error: s}
		}
		return he.Code, ErrorResponse{Error: http.StatusText(he.Code)}
	}

	log.Error("unhandled error",
		slog.String("method", c.Request().Method),
		slog.String("uri", c.Request().RequestURI),
		slog.Any("error", err),
	)
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
}

// internalMessage exposes the classified message but never the wrapped cause.
func internalMessage(e *errs.Error) string {
	if e.Message == "" {
		return "internal error"
	}
	return e.Message
}
