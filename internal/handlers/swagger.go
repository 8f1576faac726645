package handlers

// @title assetd API
// @version 1.0.0
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
)

//go:generate go run github.com/swaggo/swag/cmd/swag@latest init -g swagger.go -o ../../docs --parseDependency --parseInternal

const swaggerPath = "docs/swagger.json"

// SwaggerHandler serves the generated OpenAPI document and a browser UI.
// The document is read once, on first request.
type SwaggerHandler struct {
	logger *slog.Logger
	path   string

	once sync.Once
	spec []byte
	err  error
}

func NewSwaggerHandler(log *slog.Logger) *SwaggerHandler {
	return &SwaggerHandler{
		logger: log.With(slog.String("handler", "swagger")),
		path:   swaggerPath,
	}
}

func (h *SwaggerHandler) Register(e *echo.Echo) {
	e.GET("api/swagger.json", h.Spec)
	e.GET("api/docs", h.UI)
	e.GET("api/docs/", h.UI)
}

func (h *SwaggerHandler) Spec(c echo.Context) error {
	h.once.Do(func() {
		h.spec, h.err = os.ReadFile(h.path)
	})
	if h.err != nil {
		if errors.Is(h.err, fs.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "api docs not generated")
		}
		h.logger.Error("read swagger spec", slog.Any("error", h.err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read api docs")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, h.spec)
}

func (h *SwaggerHandler) UI(c echo.Context) error {
	return c.HTML(http.StatusOK, swaggerUIHTML)
}

const swaggerUIHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <title>assetd Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({
          url: '/api/swagger.json',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`
