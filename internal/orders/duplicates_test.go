package orders

import (
	"context"
	"testing"
	"time"

	"parcelhub/internal/model"
	"parcelhub/internal/store"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"06 12-34-56 78": "0612345678",
		"+212 612 345":   "+212612345",
		"0612345678":     "0612345678",
		"(06)12.34.56":   "06123456",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func seedOrderWithPhone(t *testing.T, mem *store.Memory, phone, product string) model.Order {
	t.Helper()
	o, err := mem.CreateOrder(context.Background(), "t1", model.OrderIn{
		CustomerName:  "A Customer",
		CustomerPhone: phone,
		Items:         []model.OrderItem{{ProductName: product, Quantity: 1}},
		TotalAmount:   50,
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestDetectorFlagsSamePhone(t *testing.T) {
	mem := store.NewMemory()
	det := NewDetector(mem, 24*time.Hour)

	prior := seedOrderWithPhone(t, mem, "0612345678", "Lamp")
	seedOrderWithPhone(t, mem, "0699999999", "Chair")

	dups, err := det.Check(context.Background(), "t1", model.OrderIn{
		CustomerPhone: "06 12 34 56 78",
		Items:         []model.OrderItem{{ProductName: "lamp", Quantity: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 1 {
		t.Fatalf("candidates = %d", len(dups))
	}
	if dups[0].OrderID != prior.ID {
		t.Fatalf("candidate = %+v", dups[0])
	}
	if !dups[0].ItemsOverlap {
		t.Fatal("item overlap not flagged")
	}
}

func TestDetectorSkipsCancelledAndRefunded(t *testing.T) {
	mem := store.NewMemory()
	det := NewDetector(mem, 24*time.Hour)
	ctx := context.Background()

	a := seedOrderWithPhone(t, mem, "0612345678", "Lamp")
	b := seedOrderWithPhone(t, mem, "0612345678", "Lamp")
	cancelled := model.StatusCancelled
	refunded := model.StatusRefunded
	if _, err := mem.UpdateOrder(ctx, "t1", a.ID, model.OrderPatch{Status: &cancelled}); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.UpdateOrder(ctx, "t1", b.ID, model.OrderPatch{Status: &refunded}); err != nil {
		t.Fatal(err)
	}

	dups, err := det.Check(ctx, "t1", model.OrderIn{CustomerPhone: "0612345678"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 0 {
		t.Fatalf("re-order after cancellation flagged: %+v", dups)
	}
}

func TestDetectorIgnoresOrdersOutsideWindow(t *testing.T) {
	mem := store.NewMemory()
	det := NewDetector(mem, 24*time.Hour)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	det.now = func() time.Time { return base }

	// same phone, but the order predates the window
	mem.SetClock(func() time.Time { return base.Add(-25 * time.Hour) })
	seedOrderWithPhone(t, mem, "0612345678", "Lamp")

	dups, err := det.Check(context.Background(), "t1", model.OrderIn{CustomerPhone: "0612345678"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 0 {
		t.Fatalf("order older than the window flagged: %+v", dups)
	}

	// just inside the window it is flagged again
	mem.SetClock(func() time.Time { return base.Add(-23 * time.Hour) })
	seedOrderWithPhone(t, mem, "0612345678", "Lamp")
	dups, err = det.Check(context.Background(), "t1", model.OrderIn{CustomerPhone: "0612345678"})
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 1 {
		t.Fatalf("candidates = %d", len(dups))
	}
}

func TestDetectorDifferentItemsStillFlagged(t *testing.T) {
	mem := store.NewMemory()
	det := NewDetector(mem, 24*time.Hour)

	seedOrderWithPhone(t, mem, "0612345678", "Lamp")
	dups, err := det.Check(context.Background(), "t1", model.OrderIn{
		CustomerPhone: "0612345678",
		Items:         []model.OrderItem{{ProductName: "Chair", Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 1 {
		t.Fatalf("candidates = %d, same phone alone should flag", len(dups))
	}
	if dups[0].ItemsOverlap {
		t.Fatal("overlap flagged for disjoint items")
	}
}

func TestDetectorEmptyPhone(t *testing.T) {
	mem := store.NewMemory()
	det := NewDetector(mem, 24*time.Hour)
	dups, err := det.Check(context.Background(), "t1", model.OrderIn{CustomerPhone: "  "})
	if err != nil || dups != nil {
		t.Fatalf("dups=%v err=%v", dups, err)
	}
}
