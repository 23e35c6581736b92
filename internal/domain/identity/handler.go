package identity

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/pkg/pagination"
)

const sessionTTL = 12 * time.Hour

type Handler struct {
	svc *Service
	jwt auth.JWTConfig
}

func NewHandler(svc *Service, jwt auth.JWTConfig) *Handler {
	return &Handler{svc: svc, jwt: jwt}
}

func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)

	api.GET("/me", h.Me)
	api.PUT("/me/password", h.ChangePassword)
	api.GET("/pharmacies", h.ListPharmacies)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.PUT("/me/verification", h.SubmitVerification)
	doctor.POST("/patients", h.CreatePatient)
	doctor.PUT("/patients/:id", h.UpdatePatient)
	doctor.POST("/patients/:id/:list", h.AppendClinical)
	doctor.DELETE("/patients/:id/:list/:index", h.RemoveClinical)

	pharmacy := api.Group("", auth.RequireRole(auth.RolePharmacy))
	pharmacy.PUT("/me/pharmacy-profile", h.UpdatePharmacyProfile)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacy))
	clinical.GET("/patients", h.ListPatients)
	clinical.GET("/patients/:id", h.GetPatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/users", h.ListUsers)
	admin.GET("/users/:id", h.GetUser)
	admin.PUT("/users/:id/status", h.SetStatus)
	admin.POST("/users/:id/terminate", h.Terminate)
	admin.POST("/users/:id/reset-password", h.ResetPassword)
	admin.DELETE("/users/:id", h.DeleteUser)
}

// -- Session --

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	token, err := auth.IssueToken(h.jwt, u.ID, u.Role, sessionTTL)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type passwordRequest struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.ChangePassword(ctx, auth.UserIDFromContext(ctx), req.Current, req.New); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPharmacies(c echo.Context) error {
	users, err := h.svc.VerifiedPharmacies(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) SubmitVerification(c echo.Context) error {
	var profile DoctorProfile
	if err := c.Bind(&profile); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	u, err := h.svc.SubmitVerification(ctx, auth.UserIDFromContext(ctx), profile)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdatePharmacyProfile(c echo.Context) error {
	var profile PharmacyProfile
	if err := c.Bind(&profile); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	u, err := h.svc.UpdatePharmacyProfile(ctx, auth.UserIDFromContext(ctx), profile)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// -- Admin --

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	role := strings.ToUpper(c.QueryParam("role"))
	status := strings.ToUpper(c.QueryParam("status"))
	users, err := h.svc.ListUsers(c.Request().Context(), role, status)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(users, p))
}

func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	u, err := h.svc.SetStatus(ctx, auth.UserIDFromContext(ctx), c.Param("id"), strings.ToUpper(req.Status))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Terminate(c echo.Context) error {
	var req terminateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	u, err := h.svc.Terminate(ctx, auth.UserIDFromContext(ctx), c.Param("id"), req.Reason)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	temp, err := h.svc.ResetPassword(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"userId": id, "temporaryPassword": temp})
}

func (h *Handler) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.UserIDFromContext(ctx), c.Param("id")); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	created, err := h.svc.CreatePatient(ctx, auth.UserIDFromContext(ctx), p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListPatients scopes doctors to their own patients; pharmacies may filter by ?doctorId.
func (h *Handler) ListPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()
	doctorID := c.QueryParam("doctorId")
	if auth.RoleFromContext(ctx) == auth.RoleDoctor {
		doctorID = auth.UserIDFromContext(ctx)
	}
	patients, err := h.svc.ListPatients(ctx, doctorID, c.QueryParam("q"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(patients, p))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	if err := h.checkOwner(c); err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = c.Param("id")
	updated, err := h.svc.UpdatePatient(c.Request().Context(), p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type clinicalRequest struct {
	Value string `json:"value"`
}

// AppendClinical serves POST /patients/:id/allergies and /patients/:id/conditions.
func (h *Handler) AppendClinical(c echo.Context) error {
	if err := h.checkOwner(c); err != nil {
		return err
	}
	var req clinicalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AppendClinical(c.Request().Context(), c.Param("id"), c.Param("list"), req.Value)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RemoveClinical(c echo.Context) error {
	if err := h.checkOwner(c); err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	p, err := h.svc.RemoveClinical(c.Request().Context(), c.Param("id"), c.Param("list"), index)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// checkOwner restricts doctors to editing the patients they registered.
func (h *Handler) checkOwner(c echo.Context) error {
	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) != auth.RoleDoctor {
		return nil
	}
	p, err := h.svc.GetPatient(ctx, c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if p.DoctorID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "patient belongs to another doctor")
	}
	return nil
}
