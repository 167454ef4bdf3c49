package analyzer

import (
	"math"
	"reflect"
	"testing"

	"pressureflow/models"
)

func level(price, qty float64) models.OrderBookLevel {
	return models.OrderBookLevel{Price: price, Quantity: qty}
}

func book(bids, asks []models.OrderBookLevel) models.OrderBookSnapshot {
	return models.NewSnapshot("BTCUSDT", models.VenueMock, 0, bids, asks)
}

// mixedWindow has several clusters on both sides of a ~45000 mid.
func mixedWindow() []models.OrderBookSnapshot {
	var w []models.OrderBookSnapshot
	for i := 0; i < 8; i++ {
		w = append(w, book(
			[]models.OrderBookLevel{level(44990, 20), level(44950, 12), level(44800, 3), level(44700, 9)},
			[]models.OrderBookLevel{level(45010, 15), level(45100, 11), level(45200, 2), level(45300, 7)},
		))
	}
	return w
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	a := New(DefaultParams())
	got := a.Analyze(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if got := a.Analyze([]models.OrderBookSnapshot{}); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestAnalyzeWindowWithoutLevels(t *testing.T) {
	a := New(DefaultParams())
	w := []models.OrderBookSnapshot{book(nil, nil), book(nil, nil)}
	if got := a.Analyze(w); len(got) != 0 {
		t.Fatalf("expected no zones, got %v", got)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	a := New(DefaultParams())
	w := mixedWindow()
	first := a.Analyze(w)
	second := a.Analyze(w)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%v\n%v", first, second)
	}
	if len(first) == 0 {
		t.Fatal("expected zones from mixed window")
	}
}

func TestAnalyzeThresholdRankAndBounds(t *testing.T) {
	params := DefaultParams()
	params.TopK = 4
	a := New(params)
	zones := a.Analyze(mixedWindow())

	// clusters above 50 over 8 snapshots: 44990(160) 45010(120) 44950(96) 45100(88) 44700(72) 45300(56)
	if len(zones) != 4 {
		t.Fatalf("len = %d, want 4", len(zones))
	}
	for i, z := range zones {
		if z.Volume <= params.VolumeThreshold {
			t.Errorf("zone %d volume %v not above threshold", i, z.Volume)
		}
		if z.Intensity < 0 || z.Intensity > 1 {
			t.Errorf("zone %d intensity %v out of range", i, z.Intensity)
		}
		if i > 0 && zones[i-1].Volume < z.Volume {
			t.Errorf("zones not in descending volume order at %d", i)
		}
	}
	want := []float64{44990, 45010, 44950, 45100}
	for i, p := range want {
		if zones[i].PriceLevel != p {
			t.Errorf("zone %d price = %v, want %v", i, zones[i].PriceLevel, p)
		}
	}
}

func TestAnalyzeExcludesClusterAtThreshold(t *testing.T) {
	a := New(DefaultParams())
	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(100, 25)}, []models.OrderBookLevel{level(102, 1)}),
		book([]models.OrderBookLevel{level(100, 25)}, []models.OrderBookLevel{level(102, 1)}),
	}
	if got := a.Analyze(w); len(got) != 0 {
		t.Fatalf("cluster with volume exactly 50 must be dropped, got %v", got)
	}
}

func TestAnalyzeClassification(t *testing.T) {
	params := DefaultParams()
	params.VolumeThreshold = 0
	a := New(params)

	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(100, 1), level(90, 5)}, []models.OrderBookLevel{level(102, 1), level(110, 4)}),
	}
	zones := a.Analyze(w)
	types := map[float64]models.ZoneType{}
	for _, z := range zones {
		types[z.PriceLevel] = z.Type
	}
	if types[90] != models.ZoneSupport {
		t.Errorf("90 classified as %q, want support", types[90])
	}
	if types[110] != models.ZoneResistance {
		t.Errorf("110 classified as %q, want resistance", types[110])
	}
	if types[102] != models.ZoneResistance || types[100] != models.ZoneSupport {
		t.Errorf("unexpected classification around mid: %v", types)
	}
}

func TestAnalyzeClassificationFallsBackToSupport(t *testing.T) {
	params := DefaultParams()
	params.VolumeThreshold = 0
	a := New(params)

	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(100, 1)}, []models.OrderBookLevel{level(102, 1)}),
		book(nil, []models.OrderBookLevel{level(110, 4)}),
	}
	for _, z := range a.Analyze(w) {
		if z.Type != models.ZoneSupport {
			t.Fatalf("zone %v should default to support when latest book has an empty side", z)
		}
	}
}

func TestAnalyzeSingleRecurringLevel(t *testing.T) {
	a := New(DefaultParams())

	var w []models.OrderBookSnapshot
	for i := 0; i < 5; i++ {
		w = append(w, book(
			[]models.OrderBookLevel{level(45000, 60), level(44900, 1)},
			[]models.OrderBookLevel{level(45100, 2)},
		))
	}

	zones := a.Analyze(w)
	if len(zones) != 1 {
		t.Fatalf("len = %d, want 1: %v", len(zones), zones)
	}
	z := zones[0]
	if z.PriceLevel != 45000 || z.Volume != 300 {
		t.Fatalf("unexpected zone %+v", z)
	}

	maxVolume := 60.0
	avgVolume := (60.0 + 1 + 2) / 3
	ratio := 300 / math.Max(maxVolume, avgVolume*10)
	want := math.Min(1, ratio*1.0*2)
	if math.Abs(z.Intensity-want) > 1e-12 {
		t.Fatalf("intensity = %v, want %v", z.Intensity, want)
	}
	// mid = 45050, so 45000 sits below it
	if z.Type != models.ZoneSupport {
		t.Fatalf("type = %q, want support", z.Type)
	}
}

func TestAnalyzeClusterCollapse(t *testing.T) {
	a := New(DefaultParams())
	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(45004, 30), level(45001, 30)}, nil),
	}
	zones := a.Analyze(w)
	if len(zones) != 1 {
		t.Fatalf("len = %d, want 1: %v", len(zones), zones)
	}
	if zones[0].PriceLevel != 45000 || zones[0].Volume != 60 {
		t.Fatalf("unexpected zone %+v", zones[0])
	}
}

func TestAnalyzeTieBreakIsInsertionOrder(t *testing.T) {
	params := DefaultParams()
	params.VolumeThreshold = 0
	a := New(params)
	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(300, 5), level(200, 5)}, []models.OrderBookLevel{level(400, 5)}),
	}
	zones := a.Analyze(w)
	want := []float64{300, 200, 400}
	for i, p := range want {
		if zones[i].PriceLevel != p {
			t.Fatalf("zone %d = %v, want %v (%v)", i, zones[i].PriceLevel, p, zones)
		}
	}
}

func TestAnalyzeConfigurableFactors(t *testing.T) {
	w := []models.OrderBookSnapshot{
		book([]models.OrderBookLevel{level(45000, 60), level(44000, 60)}, []models.OrderBookLevel{level(46000, 60)}),
	}
	base := New(DefaultParams()).Analyze(w)

	p := DefaultParams()
	p.IntensityBoost = 0.5
	p.AvgVolumeMultiplier = 1
	tuned := New(p).Analyze(w)

	// max 60, avg 60: default denominator is 600, tuned denominator is 60
	if math.Abs(base[0].Intensity-0.2) > 1e-12 {
		t.Fatalf("default intensity = %v, want 0.2", base[0].Intensity)
	}
	if math.Abs(tuned[0].Intensity-0.5) > 1e-12 {
		t.Fatalf("tuned intensity = %v, want 0.5", tuned[0].Intensity)
	}
}

func TestRoundPrice(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{45001, 45000},
		{45004, 45000},
		{45005, 45010},
		{10000, 10000},
		{1234.4, 1234},
		{1000, 1000},
		{123.44, 123.4},
		{12.346, 12.35},
		{10, 10},
		{0.12345, 0.123},
	}
	for _, c := range cases {
		if got := RoundPrice(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RoundPrice(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestAnalyzePartialPersistenceAndTolerance(t *testing.T) {
	asks := []models.OrderBookLevel{level(46000, 1)}
	tests := []struct {
		name          string
		secondBid     float64
		wantIntensity float64
	}{
		// 45040 is within 45000*0.001 of the cluster: persistence 2/4
		{"inside tolerance", 45040, 200.0 / 258.75},
		// 45100 is outside the band: persistence 1/4
		{"outside tolerance", 45100, 200.0 / 258.75 / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := []models.OrderBookSnapshot{
				book([]models.OrderBookLevel{level(45000, 200)}, asks),
				book([]models.OrderBookLevel{level(tt.secondBid, 1)}, asks),
				book([]models.OrderBookLevel{level(44000, 1)}, asks),
				book([]models.OrderBookLevel{level(44000, 1)}, asks),
			}
			zones := New(DefaultParams()).Analyze(w)
			if len(zones) != 1 {
				t.Fatalf("expected one zone, got %+v", zones)
			}
			z := zones[0]
			if z.PriceLevel != 45000 || z.Volume != 200 {
				t.Fatalf("unexpected zone %+v", z)
			}
			if math.Abs(z.Intensity-tt.wantIntensity) > 1e-9 {
				t.Errorf("intensity = %v, want %v", z.Intensity, tt.wantIntensity)
			}
			// mid is exactly 45000, so the cluster sits on the mid
			if z.Type != models.ZoneResistance {
				t.Errorf("zone at the mid classified as %q, want resistance", z.Type)
			}
		})
	}
}
