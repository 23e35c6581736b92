package auditlog

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/pkg/pagination"
)

// maxLoad bounds how many entries a listing request reads.
const maxLoad = 2000

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/audit-logs", h.ListLogs)
}

// ListLogs supports ?action= and ?actor= filters.
func (h *Handler) ListLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	entries, err := h.svc.Load(c.Request().Context(), maxLoad)
	if err != nil {
		return apperr.HTTPError(err)
	}

	action := strings.ToUpper(strings.TrimSpace(c.QueryParam("action")))
	actor := strings.TrimSpace(c.QueryParam("actor"))
	filtered := entries[:0]
	for _, e := range entries {
		if action != "" && e.Action != action {
			continue
		}
		if actor != "" && e.ActorID != actor {
			continue
		}
		filtered = append(filtered, e)
	}
	return c.JSON(http.StatusOK, pagination.Page(filtered, pg))
}
