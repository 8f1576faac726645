package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/assetd/internal/assets"
	"github.com/memohai/assetd/internal/auth"
	"github.com/memohai/assetd/internal/errs"
)

// AssetsHandler exposes the asset orchestrator over HTTP.
type AssetsHandler struct {
	service *assets.Service
	logger  *slog.Logger
}

// CreateAssetBody is the POST /assets payload.
type CreateAssetBody struct {
	Asset *assets.CreateRequest `json:"asset"`
}

// UpdateAssetFields are the mutable fields of PUT /assets/:assetId.
type UpdateAssetFields struct {
	Name       *string            `json:"name,omitempty"`
	Data       *string            `json:"data,omitempty"`
	Visibility *assets.Visibility `json:"visibility,omitempty"`
}

// UpdateAssetBody is the PUT /assets/:assetId payload.
type UpdateAssetBody struct {
	Asset *UpdateAssetFields `json:"asset"`
}

func NewAssetsHandler(log *slog.Logger, service *assets.Service) *AssetsHandler {
	return &AssetsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "assets")),
	}
}

func (h *AssetsHandler) Register(e *echo.Echo) {
	g := e.Group("/assets")
	g.POST("", h.Create)
	g.GET("/:assetId", h.Download)
	g.PUT("/:assetId", h.Update)
	g.DELETE("/:assetId", h.Delete)
}

// Create godoc
// @Summary Upload a new asset
// @Tags assets
// @Accept json
// @Produce json
// @Param payload body CreateAssetBody true "Asset payload"
// @Success 201 {object} assets.CreateResult
// @Failure 400 {object} ErrorResponse
// @Router /assets [post]
func (h *AssetsHandler) Create(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var body CreateAssetBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}
	if body.Asset == nil {
		return errs.BadInput("asset", "required")
	}
	res, err := h.service.Create(c.Request().Context(), userID, *body.Asset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Update godoc
// @Summary Update asset metadata or content
// @Tags assets
// @Accept json
// @Produce json
// @Param assetId path string true "Asset ID"
// @Param payload body UpdateAssetBody true "Fields to change"
// @Success 200 {object} assets.Asset
// @Router /assets/{assetId} [put]
func (h *AssetsHandler) Update(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var body UpdateAssetBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}
	if body.Asset == nil {
		return errs.BadInput("asset", "required")
	}
	asset, err := h.service.Update(c.Request().Context(), userID, assets.UpdateRequest{
		AssetID:    c.Param("assetId"),
		Name:       body.Asset.Name,
		Data:       body.Asset.Data,
		Visibility: body.Asset.Visibility,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, asset)
}

// Delete godoc
// @Summary Delete an asset and its thumbnail
// @Tags assets
// @Param assetId path string true "Asset ID"
// @Success 204
// @Router /assets/{assetId} [delete]
func (h *AssetsHandler) Delete(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), userID, assets.DeleteRequest{AssetID: c.Param("assetId")}); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Download godoc
// @Summary Download decrypted asset content
// @Tags assets
// @Produce octet-stream
// @Param assetId path string true "Asset ID"
// @Success 200 {file} binary
// @Router /assets/{assetId} [get]
func (h *AssetsHandler) Download(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	res, err := h.service.Download(c.Request().Context(), userID, assets.DownloadRequest{AssetID: c.Param("assetId")})
	if err != nil {
		return err
	}
	if res.Asset.Checksum != "" {
		etag := `"` + res.Asset.Checksum + `"`
		c.Response().Header().Set("ETag", etag)
		if match := c.Request().Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
			return c.NoContent(http.StatusNotModified)
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, no-cache")
	return c.Blob(http.StatusOK, res.Mime, res.Data)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return he
	}
	return errs.BadInput("body", "malformed JSON payload")
}
