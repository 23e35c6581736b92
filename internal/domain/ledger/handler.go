package ledger

import (
	"net/http"
	"strings"

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
	g := api.Group("", auth.RequireRole(auth.RolePharmacy))
	for path, kind := range map[string]string{"/suppliers": KindSupplier, "/customers": KindCustomer} {
		g.GET(path, h.List(kind))
		g.POST(path, h.Create(kind))
		g.GET(path+"/:id", h.Get(kind))
		g.POST(path+"/:id/transactions", h.Record(kind))
	}
}

// scope is the pharmacy whose private parties the caller may see. Admins see all.
func scope(c echo.Context) string {
	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) == auth.RoleAdmin {
		return ""
	}
	return auth.UserIDFromContext(ctx)
}

func (h *Handler) List(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := pagination.FromContext(c)
		parties, err := h.svc.List(c.Request().Context(), kind, scope(c))
		if err != nil {
			return apperr.HTTPError(err)
		}
		if q := strings.ToLower(strings.TrimSpace(c.QueryParam("q"))); q != "" {
			filtered := parties[:0]
			for _, party := range parties {
				if strings.Contains(strings.ToLower(party.Name), q) || strings.Contains(party.Contact, q) {
					filtered = append(filtered, party)
				}
			}
			parties = filtered
		}
		return c.JSON(http.StatusOK, pagination.Page(parties, p))
	}
}

func (h *Handler) Create(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p Party
		if err := c.Bind(&p); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		p.Kind = kind
		p.PharmacyID = ""
		if kind == KindCustomer {
			p.PharmacyID = scope(c)
		}
		created, err := h.svc.Create(c.Request().Context(), p)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func (h *Handler) Get(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := h.svc.Get(c.Request().Context(), kind, c.Param("id"))
		if err != nil {
			return apperr.HTTPError(err)
		}
		if !p.VisibleTo(scope(c)) {
			return apperr.HTTPError(apperr.NotFound(strings.ToLower(kind), p.ID))
		}
		return c.JSON(http.StatusOK, p)
	}
}

func (h *Handler) Record(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tx Transaction
		if err := c.Bind(&tx); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction: "+err.Error())
		}
		tx.Intent = strings.ToUpper(strings.TrimSpace(tx.Intent))
		ctx := c.Request().Context()
		p, err := h.svc.Get(ctx, kind, c.Param("id"))
		if err != nil {
			return apperr.HTTPError(err)
		}
		if !p.VisibleTo(scope(c)) {
			return apperr.HTTPError(apperr.NotFound(strings.ToLower(kind), p.ID))
		}
		res, err := h.svc.Record(ctx, auth.UserIDFromContext(ctx), kind, p.ID, tx)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
