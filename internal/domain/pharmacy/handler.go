package pharmacy

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/domain/insight"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/pkg/pagination"
)

// insightSalesWindow bounds how much sales history is sent to the advisor.
const insightSalesWindow = 200

type Handler struct {
	svc     *Service
	carts   *CartStore
	advisor insight.Advisor
}

func NewHandler(svc *Service, carts *CartStore, advisor insight.Advisor) *Handler {
	if advisor == nil {
		advisor = insight.Unconfigured{}
	}
	return &Handler{svc: svc, carts: carts, advisor: advisor}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/pharmacy", auth.RequireRole(auth.RolePharmacy))
	g.GET("/summary", h.Summary)

	g.GET("/inventory", h.ListInventory)
	g.POST("/inventory", h.CreateItem)
	g.GET("/inventory/low-stock", h.LowStock)
	g.GET("/inventory/near-expiry", h.NearExpiry)
	g.GET("/inventory/:id", h.GetItem)
	g.PUT("/inventory/:id", h.UpdateItem)
	g.DELETE("/inventory/:id", h.DeleteItem)

	g.GET("/cart", h.GetCart)
	g.POST("/cart/items", h.AddToCart)
	g.PUT("/cart/items/:itemId", h.SetCartQuantity)
	g.DELETE("/cart/items/:itemId", h.RemoveFromCart)
	g.DELETE("/cart", h.ClearCart)

	g.POST("/quote", h.Quote)
	g.POST("/checkout", h.Checkout)
	g.GET("/sales", h.ListSales)
	g.GET("/sales/:id", h.GetSale)
	g.GET("/sales/:id/receipt", h.GetReceipt)
	g.POST("/returns", h.CreateReturn)
	g.GET("/returns", h.ListReturns)

	g.POST("/grn", h.ReceiveGoods)
	g.GET("/grn", h.ListGoodsReceipts)
	g.POST("/expenses", h.RecordExpense)
	g.GET("/expenses", h.ListExpenses)
	g.GET("/insights", h.Insights)
}

// pharmacyID is the caller. Admins act on behalf of ?pharmacyId.
func pharmacyID(c echo.Context) string {
	ctx := c.Request().Context()
	if auth.RoleFromContext(ctx) == auth.RoleAdmin {
		if id := c.QueryParam("pharmacyId"); id != "" {
			return id
		}
	}
	return auth.UserIDFromContext(ctx)
}

func actorID(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context(), pharmacyID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

// -- Inventory --

func (h *Handler) ListInventory(c echo.Context) error {
	p := pagination.FromContext(c)
	items, err := h.svc.ListInventory(c.Request().Context(), pharmacyID(c), c.QueryParam("q"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, p))
}

func (h *Handler) CreateItem(c echo.Context) error {
	var item InventoryItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.CreateItem(c.Request().Context(), pharmacyID(c), item)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetItem(c echo.Context) error {
	item, err := h.svc.GetItem(c.Request().Context(), pharmacyID(c), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	var item InventoryItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item.ID = c.Param("id")
	updated, err := h.svc.UpdateItem(c.Request().Context(), pharmacyID(c), item)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteItem(c echo.Context) error {
	if err := h.svc.DeleteItem(c.Request().Context(), pharmacyID(c), c.Param("id")); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context(), pharmacyID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) NearExpiry(c echo.Context) error {
	var window time.Duration
	if d := c.QueryParam("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		window = time.Duration(days) * 24 * time.Hour
	}
	items, err := h.svc.NearExpiry(c.Request().Context(), pharmacyID(c), window)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Cart --

func (h *Handler) GetCart(c echo.Context) error {
	cart := h.carts.Get(pharmacyID(c))
	return c.JSON(http.StatusOK, Totals(cart.Lines))
}

func (h *Handler) AddToCart(c echo.Context) error {
	var req LineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	ph := pharmacyID(c)
	item, err := h.svc.GetItem(c.Request().Context(), ph, req.InventoryItemID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	cart, err := h.carts.Update(ph, func(cart *Cart) error { return cart.Add(item, req.Quantity) })
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, Totals(cart.Lines))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) SetCartQuantity(c echo.Context) error {
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ph := pharmacyID(c)
	item, err := h.svc.GetItem(c.Request().Context(), ph, c.Param("itemId"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	cart, err := h.carts.Update(ph, func(cart *Cart) error { return cart.SetQuantity(item, req.Quantity) })
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, Totals(cart.Lines))
}

func (h *Handler) RemoveFromCart(c echo.Context) error {
	itemID := c.Param("itemId")
	cart, _ := h.carts.Update(pharmacyID(c), func(cart *Cart) error {
		cart.Remove(itemID)
		return nil
	})
	return c.JSON(http.StatusOK, Totals(cart.Lines))
}

func (h *Handler) ClearCart(c echo.Context) error {
	h.carts.Clear(pharmacyID(c))
	return c.NoContent(http.StatusNoContent)
}

// -- Sales --

type quoteRequest struct {
	Lines []LineRequest `json:"lines"`
}

func (h *Handler) Quote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.svc.Quote(c.Request().Context(), pharmacyID(c), req.Lines)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, q)
}

// Checkout sells the posted lines, or the open cart when none are posted.
// The open cart is cleared after a cart checkout succeeds.
func (h *Handler) Checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ph := pharmacyID(c)
	fromCart := len(req.Lines) == 0
	if fromCart {
		cart := h.carts.Get(ph)
		req.Lines = cart.Requests()
	}
	res, err := h.svc.Checkout(c.Request().Context(), actorID(c), ph, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if fromCart {
		h.carts.Clear(ph)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListSales(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.ListSales(c.Request().Context(), pharmacyID(c), c.QueryParam("customerId"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

func (h *Handler) GetSale(c echo.Context) error {
	sale, err := h.svc.GetSale(c.Request().Context(), pharmacyID(c), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sale)
}

func (h *Handler) GetReceipt(c echo.Context) error {
	r, err := h.svc.Receipt(c.Request().Context(), pharmacyID(c), c.Param("id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateReturn(c echo.Context) error {
	var req ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ret, err := h.svc.Return(c.Request().Context(), actorID(c), pharmacyID(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, ret)
}

func (h *Handler) ListReturns(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.ListReturns(c.Request().Context(), pharmacyID(c), c.QueryParam("saleId"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

// -- Purchasing and expenses --

func (h *Handler) ReceiveGoods(c echo.Context) error {
	var req GRNRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	grn, err := h.svc.ReceiveGoods(c.Request().Context(), actorID(c), pharmacyID(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, grn)
}

func (h *Handler) ListGoodsReceipts(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.ListGoodsReceipts(c.Request().Context(), pharmacyID(c), c.QueryParam("supplierId"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

func (h *Handler) RecordExpense(c echo.Context) error {
	var e Expense
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.RecordExpense(c.Request().Context(), actorID(c), pharmacyID(c), e)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListExpenses(c echo.Context) error {
	p := pagination.FromContext(c)
	list, err := h.svc.ListExpenses(c.Request().Context(), pharmacyID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(list, p))
}

// Insights forwards a snapshot of stock and recent sales to the advisor and
// returns its answer unchanged.
func (h *Handler) Insights(c echo.Context) error {
	ctx := c.Request().Context()
	ph := pharmacyID(c)
	items, err := h.svc.ListInventory(ctx, ph, "")
	if err != nil {
		return apperr.HTTPError(err)
	}
	saleList, err := h.svc.ListSales(ctx, ph, "")
	if err != nil {
		return apperr.HTTPError(err)
	}
	if len(saleList) > insightSalesWindow {
		saleList = saleList[:insightSalesWindow]
	}

	stock := make([]insight.StockLine, len(items))
	for i, it := range items {
		stock[i] = insight.StockLine{Name: it.Name, Stock: it.Stock, MRP: it.MRP, Expiry: it.Expiry}
	}
	history := make([]insight.SaleLine, len(saleList))
	for i, s := range saleList {
		names := make([]string, len(s.Items))
		for j, l := range s.Items {
			names[j] = l.Name
		}
		history[i] = insight.SaleLine{Date: s.Date, Total: s.RoundedTotal, Items: names}
	}

	out, err := h.advisor.Advise(ctx, stock, history)
	if errors.Is(err, insight.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "insight advisor failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, out)
}
