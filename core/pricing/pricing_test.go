package pricing

import (
	"testing"
	"time"

	"github.com/petriage/petriage/core/model"
)

func testConfig() Config {
	c := Config{BaseFee: 80, PerKmFee: 2, HomeCancelFee: 15}
	c.SetDefaults()
	return c
}

func TestQuote(t *testing.T) {
	c := testConfig()
	q := c.Quote(3.5)
	if q.DistanceFee != 7 {
		t.Fatalf("expected distance fee 7 got %v", q.DistanceFee)
	}
	if q.Total != 87 {
		t.Fatalf("expected total 87 got %v", q.Total)
	}
	if q.Currency != "EUR" {
		t.Fatalf("expected default currency got %q", q.Currency)
	}
}

func TestCancellationFee(t *testing.T) {
	c := testConfig()
	now := time.Now().UTC()
	cases := []struct {
		name string
		req  model.DispatchRequest
		want float64
	}{
		{
			name: "clinic mode charges half the total",
			req: model.DispatchRequest{
				Mode:      model.ModeClinic,
				Pricing:   model.PricingSnapshot{Total: 90},
				CreatedAt: now,
			},
			want: 45,
		},
		{
			name: "home visit inside free window",
			req: model.DispatchRequest{
				Mode:      model.ModeHome,
				Pricing:   model.PricingSnapshot{Total: 90},
				CreatedAt: now.Add(-time.Minute),
			},
			want: 0,
		},
		{
			name: "home visit past free window",
			req: model.DispatchRequest{
				Mode:      model.ModeHome,
				Pricing:   model.PricingSnapshot{Total: 90},
				CreatedAt: now.Add(-3 * time.Minute),
			},
			want: 15,
		},
	}
	for _, c2 := range cases {
		t.Run(c2.name, func(t *testing.T) {
			if got := c.CancellationFee(c2.req, now); got != c2.want {
				t.Fatalf("expected %v got %v", c2.want, got)
			}
		})
	}
}

func TestCancellationFee_WindowBoundary(t *testing.T) {
	c := testConfig()
	now := time.Now().UTC()
	r := model.DispatchRequest{Mode: model.ModeHome, CreatedAt: now.Add(-120 * time.Second)}
	// Exactly at the boundary still counts as inside the free window.
	if got := c.CancellationFee(r, now); got != 0 {
		t.Fatalf("expected 0 at boundary got %v", got)
	}
}
