package labreferral

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/platform/blobstore"
	"github.com/devxworld/erx/internal/platform/middleware"
	"github.com/devxworld/erx/pkg/pagination"
)

// uploadLimit leaves room for multipart framing around a maximum-size file.
const uploadLimit = "6M"

type Handler struct {
	svc     *Service
	blobs   blobstore.BlobStore
	baseURL string
}

func NewHandler(svc *Service, blobs blobstore.BlobStore, baseURL string) *Handler {
	return &Handler{svc: svc, blobs: blobs, baseURL: baseURL}
}

// RegisterRoutes mounts the doctor routes on api and the upload link on
// public. limit guards every public route.
func (h *Handler) RegisterRoutes(api, public *echo.Group, limit ...echo.MiddlewareFunc) {
	doctor := api.Group("/lab-referrals", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("", h.Create)
	doctor.GET("", h.List)
	doctor.GET("/:id", h.Get)

	lab := public.Group("/lab", limit...)
	lab.GET("/:id", h.PublicView)
	lab.POST("/:id/verify", h.Verify)
	lab.POST("/:id/report", h.UploadReport, middleware.BodyLimit(uploadLimit))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := h.svc.Create(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()
	list, err := h.svc.List(ctx, auth.UserIDFromContext(ctx), c.QueryParam("patientId"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ref, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if auth.RoleFromContext(ctx) != auth.RoleAdmin && ref.DoctorID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusNotFound, "lab referral not found")
	}
	return c.JSON(http.StatusOK, ref)
}

// -- Public upload link --

func (h *Handler) PublicView(c echo.Context) error {
	ref, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, ref.Public())
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.svc.VerifyCode(c.Request().Context(), c.Param("id"), req.Code)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, verifyResponse{Valid: ok})
}

// UploadReport takes a multipart form with "code" and "file". The code and
// the referral state are checked before the file is stored, and the file is
// removed again if the referral cannot be completed.
func (h *Handler) UploadReport(c echo.Context) error {
	ctx := c.Request().Context()
	id, code := c.Param("id"), c.FormValue("code")

	ref, err := h.svc.Get(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if !codeMatches(ref, code) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid access code")
	}
	if ref.Status == StatusCompleted {
		return apperr.HTTPError(apperr.State("a report has already been submitted for %s", id))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	meta, err := h.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Category:    "lab-report",
	}, f)
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "store report").SetInternal(err)
	}

	ref, err = h.svc.SubmitReport(ctx, id, code, blobstore.PublicURL(h.baseURL, meta.ID))
	if err != nil {
		_ = h.blobs.Delete(context.WithoutCancel(ctx), meta.ID)
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, ref.Public())
}
