package prescription

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/prescriptions", h.Create)
	doctor.GET("/prescriptions", h.ListForDoctor)
	doctor.GET("/rx-templates", h.ListTemplates)
	doctor.POST("/rx-templates", h.SaveTemplate)
	doctor.DELETE("/rx-templates/:id", h.DeleteTemplate)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacy))
	pharmacy.GET("/pharmacy/queue", h.Queue)
	pharmacy.GET("/pharmacy/history", h.History)
	pharmacy.POST("/prescriptions/:id/dispense", h.Dispense)
	pharmacy.POST("/prescriptions/:id/reject", h.Reject)
	pharmacy.GET("/prescriptions/:id/matches", h.Matches)
	pharmacy.POST("/prescriptions/:id/resolve-patient", h.ResolvePatient)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacy))
	clinical.GET("/prescriptions/:id", h.Get)
	clinical.GET("/prescriptions/:id/document", h.Document)
	clinical.GET("/patients/:id/prescriptions", h.ForPatient)
}

func caller(c echo.Context) (id, role string) {
	ctx := c.Request().Context()
	return auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx)
}

// scope is the pharmacy a request acts for; empty for administrators.
func scope(c echo.Context) string {
	id, role := caller(c)
	if role == auth.RoleAdmin {
		return ""
	}
	return id
}

// visible reports whether the caller may read rx: its doctor, its pharmacy
// or an administrator.
func visible(c echo.Context, rx Prescription) bool {
	id, role := caller(c)
	switch role {
	case auth.RoleAdmin:
		return true
	case auth.RoleDoctor:
		return rx.DoctorID == id
	case auth.RolePharmacy:
		return rx.PharmacyID == id
	}
	return false
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, _ := caller(c)
	rx, err := h.svc.Create(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

// ListForDoctor lists the caller's prescriptions. Administrators may pass
// ?doctorId or omit it to list everything.
func (h *Handler) ListForDoctor(c echo.Context) error {
	p := pagination.FromContext(c)
	id, role := caller(c)
	doctorID := id
	if role == auth.RoleAdmin {
		doctorID = c.QueryParam("doctorId")
	}
	list, err := h.svc.ForDoctor(c.Request().Context(), doctorID, c.QueryParam("q"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

func (h *Handler) Get(c echo.Context) error {
	rx, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if !visible(c, rx) {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) Document(c echo.Context) error {
	rx, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if !visible(c, rx) {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, NewDocument(rx))
}

func (h *Handler) ForPatient(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.ForPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	out := make([]Prescription, 0, len(list))
	for _, rx := range list {
		if visible(c, rx) {
			out = append(out, rx)
		}
	}
	return c.JSON(http.StatusOK, pagination.Page(out, p))
}

// -- Pharmacy --

func (h *Handler) pharmacyID(c echo.Context) string {
	id, role := caller(c)
	if role == auth.RoleAdmin {
		if q := c.QueryParam("pharmacyId"); q != "" {
			return q
		}
	}
	return id
}

func (h *Handler) Queue(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.Queue(c.Request().Context(), h.pharmacyID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

func (h *Handler) History(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.History(c.Request().Context(), h.pharmacyID(c), c.QueryParam("q"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

type dispenseRequest struct {
	PatientID string `json:"patientId"`
}

func (h *Handler) Dispense(c echo.Context) error {
	var req dispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, _ := caller(c)
	res, err := h.svc.Dispense(c.Request().Context(), id, scope(c), c.Param("id"), req.PatientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reason == "" {
		req.Reason = StatusRejected
	}
	id, _ := caller(c)
	rx, err := h.svc.Reject(c.Request().Context(), id, scope(c), c.Param("id"), req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) Matches(c echo.Context) error {
	list, err := h.svc.Candidates(c.Request().Context(), scope(c), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ResolvePatient(c echo.Context) error {
	var d Decision
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, _ := caller(c)
	rx, err := h.svc.Resolve(c.Request().Context(), id, scope(c), c.Param("id"), d)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

// -- Templates --

func (h *Handler) ListTemplates(c echo.Context) error {
	id, _ := caller(c)
	list, err := h.svc.ListTemplates(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) SaveTemplate(c echo.Context) error {
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, _ := caller(c)
	saved, err := h.svc.SaveTemplate(c.Request().Context(), id, t)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	id, _ := caller(c)
	if err := h.svc.DeleteTemplate(c.Request().Context(), id, c.Param("id")); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
