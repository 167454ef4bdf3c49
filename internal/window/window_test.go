package window

import (
	"sync"
	"testing"

	"pressureflow/models"
)

func snap(ts int64) models.OrderBookSnapshot {
	return models.NewSnapshot("BTCUSDT", models.VenueMock, ts,
		[]models.OrderBookLevel{{Price: 100, Quantity: 1}},
		[]models.OrderBookLevel{{Price: 101, Quantity: 1}})
}

func TestAppendEvictsOldest(t *testing.T) {
	w := New(150)
	for i := 0; i < 200; i++ {
		w.Append(snap(int64(i)))
	}
	if w.Len() != 150 {
		t.Fatalf("len = %d, want 150", w.Len())
	}
	last := w.Recent(1)
	if len(last) != 1 || last[0].TimestampMs != 199 {
		t.Fatalf("unexpected tail: %+v", last)
	}
	all := w.Recent(1000)
	if all[0].TimestampMs != 50 {
		t.Fatalf("oldest retained = %d, want 50", all[0].TimestampMs)
	}
	if w.Appended() != 200 {
		t.Fatalf("appended = %d", w.Appended())
	}
}

func TestRecentOrderAndBounds(t *testing.T) {
	w := New(0)
	if w.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d", w.Capacity())
	}
	if got := w.Recent(20); len(got) != 0 {
		t.Fatalf("expected empty window, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		w.Append(snap(int64(i)))
	}
	got := w.Recent(3)
	for i, s := range got {
		if s.TimestampMs != int64(i+2) {
			t.Fatalf("Recent(3)[%d] = %d, want %d", i, s.TimestampMs, i+2)
		}
	}
	if len(w.Recent(0)) != 0 {
		t.Fatal("Recent(0) should be empty")
	}
}

func TestRecentIsACopy(t *testing.T) {
	w := New(10)
	w.Append(snap(1))
	got := w.Recent(1)
	got[0].TimestampMs = 42
	if latest, _ := w.Latest(); latest.TimestampMs != 1 {
		t.Fatalf("window mutated through Recent slice")
	}
}

func TestConcurrentAppend(t *testing.T) {
	w := New(1000)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Append(snap(int64(i)))
				_ = w.Recent(20)
			}
		}()
	}
	wg.Wait()
	if w.Len() != 400 {
		t.Fatalf("len = %d, want 400", w.Len())
	}
}

func TestDownsample(t *testing.T) {
	w := New(150)
	for i := 0; i < 150; i++ {
		w.Append(snap(int64(i)))
	}
	got := w.Downsample(50)
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
	// newest 35 are kept verbatim
	for i := 0; i < 35; i++ {
		if got[15+i].TimestampMs != int64(115+i) {
			t.Fatalf("recent part mismatch at %d: %d", i, got[15+i].TimestampMs)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].TimestampMs >= got[i].TimestampMs {
			t.Fatalf("downsample not in arrival order at %d", i)
		}
	}
	if len(w.Downsample(500)) != 150 {
		t.Fatal("downsample above size should return everything")
	}
}
