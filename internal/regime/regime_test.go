package regime

import (
	"context"
	"testing"
)

type fakeFNGSource struct {
	val int
	ok  bool
}

func (f *fakeFNGSource) RawFNGValue(ctx context.Context) (int, bool) {
	return f.val, f.ok
}

func TestClassifyBuckets(t *testing.T) {
	cases := []struct {
		fng   int
		label string
	}{
		{10, "extreme_fear"},
		{35, "fear"},
		{50, "neutral"},
		{70, "greed"},
		{90, "extreme_greed"},
	}
	for _, c := range cases {
		adj := classify(c.fng)
		if adj.Label != c.label {
			t.Fatalf("fng=%d: expected label %q, got %q", c.fng, c.label, adj.Label)
		}
		if adj.FNGValue != c.fng {
			t.Fatalf("expected FNGValue %d, got %d", c.fng, adj.FNGValue)
		}
	}
}

func TestCurrentFallsBackToNeutralOnFetchFailure(t *testing.T) {
	d := NewDetector(&fakeFNGSource{ok: false})
	adj := d.Current(context.Background())
	if adj.Label != "neutral" || adj.FNGValue != 50 {
		t.Fatalf("expected neutral fallback, got %+v", adj)
	}
}

func TestCurrentCachesClassification(t *testing.T) {
	src := &fakeFNGSource{val: 10, ok: true}
	d := NewDetector(src)
	first := d.Current(context.Background())
	src.val = 90
	second := d.Current(context.Background())
	if first.Label != second.Label {
		t.Fatalf("expected cached classification to persist within TTL, got %+v then %+v", first, second)
	}
}

func TestMomentumOverrideForcesLabel(t *testing.T) {
	d := NewDetector(&fakeFNGSource{val: 90, ok: true})
	d.SetMomentumOverride(true)
	adj := d.Current(context.Background())
	if adj.Label != "momentum_capture" {
		t.Fatalf("expected momentum_capture override, got %+v", adj)
	}
	if adj.SizeMultiplier <= 1.0 {
		t.Fatalf("expected size multiplier boosted above baseline, got %v", adj.SizeMultiplier)
	}
}
