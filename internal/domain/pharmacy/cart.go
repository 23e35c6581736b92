package pharmacy

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/devxworld/erx/internal/platform/apperr"
)

var hundred = decimal.NewFromInt(100)

// Cart is an ordered list of lines, one per inventory item.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// Add puts qty units of item in the cart. An item already in the cart has
// its quantity increased; the total may not exceed the item's stock.
func (c *Cart) Add(item InventoryItem, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	if item.Stock <= 0 {
		return apperr.Validation("%s is out of stock", item.Name)
	}
	if i := c.index(item.ID); i >= 0 {
		next := c.Lines[i].Quantity + qty
		if next > item.Stock {
			return apperr.Validation("only %d units of %s in stock", item.Stock, item.Name)
		}
		c.Lines[i].Quantity = next
		return nil
	}
	if qty > item.Stock {
		return apperr.Validation("only %d units of %s in stock", item.Stock, item.Name)
	}
	c.Lines = append(c.Lines, CartLine{
		InventoryItemID: item.ID,
		Name:            item.Name,
		Quantity:        qty,
		UnitMRP:         item.MRP,
		Batch:           item.Batch,
		GSTPercent:      item.GSTPercent,
	})
	return nil
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(item InventoryItem, qty int) error {
	i := c.index(item.ID)
	if i < 0 {
		return apperr.NotFound("cart line", item.ID)
	}
	switch {
	case qty < 0:
		return apperr.Validation("quantity must not be negative")
	case qty == 0:
		c.Remove(item.ID)
		return nil
	case qty > item.Stock:
		return apperr.Validation("only %d units of %s in stock", item.Stock, item.Name)
	}
	c.Lines[i].Quantity = qty
	return nil
}

func (c *Cart) Remove(itemID string) {
	if i := c.index(itemID); i >= 0 {
		c.Lines = append(c.Lines[:i:i], c.Lines[i+1:]...)
	}
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Requests() []LineRequest {
	out := make([]LineRequest, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = LineRequest{InventoryItemID: l.InventoryItemID, Quantity: l.Quantity}
	}
	return out
}

func (c *Cart) index(itemID string) int {
	for i := range c.Lines {
		if c.Lines[i].InventoryItemID == itemID {
			return i
		}
	}
	return -1
}

// Totals bills lines. The total is the subtotal rounded half-up to a whole
// currency unit.
func Totals(lines []CartLine) Quote {
	subtotal, gst := decimal.Zero, decimal.Zero
	for _, l := range lines {
		amt := l.Amount()
		subtotal = subtotal.Add(amt)
		gst = gst.Add(amt.Mul(l.GSTPercent).Div(hundred))
	}
	return Quote{
		Lines:        lines,
		Subtotal:     subtotal,
		GSTAmount:    gst.Round(2),
		RoundedTotal: subtotal.Round(0),
	}
}

// Settlement splits a payment against a rounded total.
type Settlement struct {
	BalanceDue decimal.Decimal
	Change     decimal.Decimal
	Mode       string
}

// Settle derives the balance due and the payment mode. A positive balance is
// only allowed against a registered customer.
func Settle(total, paid decimal.Decimal, selected string, hasCustomer bool) (Settlement, error) {
	if paid.IsNegative() {
		return Settlement{}, apperr.Validation("amount paid must not be negative")
	}
	if selected == "" {
		selected = ModeCash
	}
	if selected != ModeCash && selected != ModeUPI && selected != ModeCard {
		return Settlement{}, apperr.Validation("payment mode must be %s, %s or %s", ModeCash, ModeUPI, ModeCard)
	}

	due := decimal.Max(decimal.Zero, total.Sub(paid))
	s := Settlement{
		BalanceDue: due,
		Change:     decimal.Max(decimal.Zero, paid.Sub(total)),
		Mode:       selected,
	}
	if due.IsPositive() && !hasCustomer {
		return Settlement{}, apperr.Validation("walk-in sales must be fully paid; select a customer to sell on credit")
	}
	switch {
	case !due.IsPositive():
	case paid.IsZero():
		s.Mode = ModeCredit
	default:
		s.Mode = ModePartial
	}
	return s, nil
}

// CartStore holds each pharmacy's open cart in process memory.
type CartStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*Cart)}
}

// Update runs fn on a copy of the pharmacy's cart and keeps the result only
// when fn succeeds.
func (s *CartStore) Update(pharmacyID string, fn func(c *Cart) error) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot(pharmacyID)
	if err := fn(&cur); err != nil {
		return Cart{}, err
	}
	s.carts[pharmacyID] = &cur
	return cur, nil
}

func (s *CartStore) Get(pharmacyID string) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(pharmacyID)
}

func (s *CartStore) Clear(pharmacyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, pharmacyID)
}

func (s *CartStore) snapshot(pharmacyID string) Cart {
	c, ok := s.carts[pharmacyID]
	if !ok {
		return Cart{Lines: []CartLine{}}
	}
	return Cart{Lines: append([]CartLine{}, c.Lines...)}
}
