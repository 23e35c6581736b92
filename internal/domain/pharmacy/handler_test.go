package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/devxworld/erx/internal/domain/insight"
	"github.com/devxworld/erx/internal/platform/auth"
)

var pharmacyUser = auth.CurrentUser{ID: "ph-1", Role: auth.RolePharmacy}

func newHandlerContext(method, target, body string, user auth.CurrentUser) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

type stubAdvisor struct {
	got []insight.StockLine
}

func (a *stubAdvisor) Advise(_ context.Context, inv []insight.StockLine, _ []insight.SaleLine) (insight.Insights, error) {
	a.got = inv
	return insight.Insights{ReorderSuggestions: []string{"Amoxicillin"}}, nil
}

func TestHandler_CartCheckoutClearsCart(t *testing.T) {
	svc, f := newTestService(t)
	carts := NewCartStore()
	h := NewHandler(svc, carts, nil)

	c, rec := newHandlerContext(http.MethodPost, "/pharmacy/cart/items", `{"inventoryItemId":"inv-para","quantity":2}`, pharmacyUser)
	if err := h.AddToCart(c); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	var q Quote
	json.Unmarshal(rec.Body.Bytes(), &q)
	if len(q.Lines) != 1 || !q.RoundedTotal.Equal(dec("60")) {
		t.Fatalf("unexpected cart quote %+v", q)
	}

	c, rec = newHandlerContext(http.MethodPost, "/pharmacy/checkout", `{"amountPaid":"60","paymentMode":"CASH"}`, pharmacyUser)
	if err := h.Checkout(c); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res CheckoutResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Sale.ID != "INV-000001" {
		t.Errorf("unexpected sale %+v", res.Sale)
	}
	if got := carts.Get("ph-1"); !got.Empty() {
		t.Errorf("expected cart cleared after checkout, got %+v", got.Lines)
	}
	if got := stockOf(t, f, "inv-para"); got != 8 {
		t.Errorf("expected stock 8, got %d", got)
	}
}

func TestHandler_CheckoutEmptyCartConflict(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, NewCartStore(), nil)

	c, _ := newHandlerContext(http.MethodPost, "/pharmacy/checkout", `{}`, pharmacyUser)
	err := h.Checkout(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_AdminActsForPharmacy(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, NewCartStore(), nil)

	c, rec := newHandlerContext(http.MethodGet, "/pharmacy/inventory?pharmacyId=ph-2", "", auth.CurrentUser{ID: auth.DevUserID, Role: auth.RoleAdmin})
	if err := h.ListInventory(c); err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	var page struct {
		Data  []InventoryItem `json:"data"`
		Total int             `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || page.Data[0].ID != "inv-other" {
		t.Errorf("expected ph-2 inventory, got %+v", page)
	}

	c, rec = newHandlerContext(http.MethodGet, "/pharmacy/inventory?pharmacyId=ph-2", "", pharmacyUser)
	h.ListInventory(c)
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 2 {
		t.Errorf("expected a pharmacy to stay scoped to itself, got %d items", page.Total)
	}
}

func TestHandler_Insights(t *testing.T) {
	svc, _ := newTestService(t)

	c, _ := newHandlerContext(http.MethodGet, "/pharmacy/insights", "", pharmacyUser)
	err := NewHandler(svc, NewCartStore(), nil).Insights(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an advisor, got %v", err)
	}

	advisor := &stubAdvisor{}
	c, rec := newHandlerContext(http.MethodGet, "/pharmacy/insights", "", pharmacyUser)
	if err := NewHandler(svc, NewCartStore(), advisor).Insights(c); err != nil {
		t.Fatalf("insights: %v", err)
	}
	if len(advisor.got) != 2 {
		t.Errorf("expected the pharmacy's 2 stock lines, got %+v", advisor.got)
	}
	if !strings.Contains(rec.Body.String(), "Amoxicillin") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_NearExpiryRejectsBadDays(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, NewCartStore(), nil)

	c, _ := newHandlerContext(http.MethodGet, "/pharmacy/inventory/near-expiry?days=abc", "", pharmacyUser)
	var he *echo.HTTPError
	if err := h.NearExpiry(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
