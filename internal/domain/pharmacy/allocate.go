package pharmacy

import (
	"context"
	"strings"

	"github.com/devxworld/erx/internal/store"
)

// Allocate takes one unit per medicine name from the pharmacy's stock inside
// u. For each name it picks the in-stock, unexpired item with the earliest
// expiry whose name matches case-insensitively. Names with nothing available
// are returned and leave stock untouched.
func (s *Service) Allocate(ctx context.Context, u *store.Unit, pharmacyID string, names []string) ([]string, error) {
	items, err := inventory.Load(ctx, u)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := now.Format(ExpiryLayout)

	var unavailable []string
	changed := false
	for _, name := range names {
		i := pickForDispense(items, pharmacyID, name, today)
		if i < 0 {
			unavailable = append(unavailable, name)
			continue
		}
		items[i].Stock--
		items[i].UpdatedAt = now
		changed = true
	}
	if changed {
		if err := inventory.Stage(u, items); err != nil {
			return nil, err
		}
	}
	return unavailable, nil
}

func pickForDispense(items []InventoryItem, pharmacyID, name, today string) int {
	name = strings.TrimSpace(name)
	best := -1
	for i, it := range items {
		if it.PharmacyID != pharmacyID || it.Stock <= 0 || !strings.EqualFold(strings.TrimSpace(it.Name), name) {
			continue
		}
		if it.Expiry != "" && it.Expiry < today {
			continue
		}
		if best < 0 || expiresBefore(it, items[best]) {
			best = i
		}
	}
	return best
}

// expiresBefore orders by expiry date; items without a date sort last.
func expiresBefore(a, b InventoryItem) bool {
	switch {
	case a.Expiry == "":
		return false
	case b.Expiry == "":
		return true
	default:
		return a.Expiry < b.Expiry
	}
}
