package orders

import (
	"context"
	"strings"
	"time"

	"parcelhub/internal/model"
	"parcelhub/internal/store"
)

// Detector flags probable duplicate orders: same customer phone within the
// window. The result is advisory; creation always proceeds and a human decides.
// False positives are acceptable, silent duplicate shipments are not.
type Detector struct {
	Store  store.Store
	Window time.Duration

	now func() time.Time
}

func NewDetector(s store.Store, window time.Duration) *Detector {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Detector{Store: s, Window: window, now: time.Now}
}

// NormalizePhone strips formatting so "06 12-34-56 78" and "0612345678" match.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Check returns recent orders from the same phone number. Cancelled and
// refunded orders are skipped: re-ordering after a cancellation is legitimate.
func (d *Detector) Check(ctx context.Context, tenantID string, in model.OrderIn) ([]model.DuplicateCandidate, error) {
	phone := NormalizePhone(in.CustomerPhone)
	if phone == "" {
		return nil, nil
	}
	since := d.now().Add(-d.Window)
	prior, err := d.Store.FindOrdersByPhoneSince(ctx, tenantID, phone, since)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, it := range in.Items {
		names[strings.ToLower(strings.TrimSpace(it.ProductName))] = true
	}
	var out []model.DuplicateCandidate
	for _, o := range prior {
		if o.Status == model.StatusCancelled || o.Status == model.StatusRefunded {
			continue
		}
		c := model.DuplicateCandidate{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
			CreatedAt:   o.CreatedAt,
		}
		for _, it := range o.Items {
			c.Items = append(c.Items, it.ProductName)
			if names[strings.ToLower(strings.TrimSpace(it.ProductName))] {
				c.ItemsOverlap = true
			}
		}
		out = append(out, c)
	}
	return out, nil
}
