package processor

import (
	"errors"
	"testing"
	"time"

	"pressureflow/models"
)

func rawMsg(venue models.Venue, symbol, data string) models.RawSnapshotMessage {
	return models.RawSnapshotMessage{
		Venue:      venue,
		Symbol:     symbol,
		Source:     models.SourceREST,
		ReceivedAt: time.UnixMilli(1700000000000),
		Data:       []byte(data),
	}
}

func TestBinanceNormalizer(t *testing.T) {
	data := `{"lastUpdateId":42,"bids":[["99.5","2"],["100","1.5"]],"asks":[["101","3"],["bad","1"]]}`
	snap, err := BinanceNormalizer{}.Normalize(rawMsg(models.VenueBinance, "BTCUSDT", data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.Venue != models.VenueBinance {
		t.Fatalf("unexpected identity: %s %s", snap.Symbol, snap.Venue)
	}
	if len(snap.Bids) != 2 || snap.Bids[0].Price != 100 {
		t.Fatalf("bids not sorted descending: %+v", snap.Bids)
	}
	if snap.Bids[1].CumulativeQuantity != 3.5 {
		t.Fatalf("expected cumulative 3.5, got %v", snap.Bids[1].CumulativeQuantity)
	}
	if len(snap.Asks) != 1 {
		t.Fatalf("expected malformed ask skipped, got %d asks", len(snap.Asks))
	}
	if snap.Spread != 1 {
		t.Fatalf("expected spread 1, got %v", snap.Spread)
	}
	if snap.Bids[0].OrderCount != 1 {
		t.Fatalf("expected order count 1, got %d", snap.Bids[0].OrderCount)
	}
	if snap.TimestampMs != 1700000000000 {
		t.Fatalf("expected receive time fallback, got %d", snap.TimestampMs)
	}
}

func TestBinanceNormalizerStreamEvent(t *testing.T) {
	data := `{"lastUpdateId":1,"s":"ethusdt","E":1700000001234,"bids":[["10","1"]],"asks":[["11","1"]]}`
	snap, err := BinanceNormalizer{}.Normalize(rawMsg(models.VenueBinance, "", data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "ETHUSDT" || snap.TimestampMs != 1700000001234 {
		t.Fatalf("unexpected snapshot: %s %d", snap.Symbol, snap.TimestampMs)
	}
}

func TestOKXNormalizer(t *testing.T) {
	data := `{"code":"0","msg":"","data":[{"asks":[["101","2","0","7"]],"bids":[["100","1","0","3"],["99","4","0","0"]],"ts":"1700000005000"}]}`
	snap, err := OKXNormalizer{}.Normalize(rawMsg(models.VenueOKX, "BTC-USDT", data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "BTCUSDT" {
		t.Fatalf("expected canonical symbol, got %s", snap.Symbol)
	}
	if snap.TimestampMs != 1700000005000 {
		t.Fatalf("unexpected timestamp %d", snap.TimestampMs)
	}
	if snap.Asks[0].OrderCount != 7 || snap.Bids[0].OrderCount != 3 {
		t.Fatalf("order counts not read: %+v %+v", snap.Asks[0], snap.Bids[0])
	}
	if snap.Bids[1].OrderCount != 1 {
		t.Fatalf("zero order count should become 1, got %d", snap.Bids[1].OrderCount)
	}
}

func TestOKXNormalizerErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"api error", `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`, nil},
		{"stream error", `{"event":"error","code":"60012","msg":"Invalid request"}`, nil},
		{"update", `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[{"asks":[],"bids":[],"ts":"1"}]}`, ErrIncrementalUpdate},
		{"no data", `{"code":"0","data":[]}`, models.ErrEmptyBook},
		{"bad json", `{"code":`, nil},
		{"bad ts", `{"code":"0","data":[{"asks":[["1","1"]],"bids":[],"ts":"abc"}]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OKXNormalizer{}.Normalize(rawMsg(models.VenueOKX, "BTC-USDT", tt.data))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOKXNormalizerStreamPush(t *testing.T) {
	data := `{"arg":{"channel":"books5","instId":"ETH-USDT"},"data":[{"asks":[["2001","1","0","2"]],"bids":[["2000","1","0","2"]],"ts":"1700000000100"}]}`
	snap, err := OKXNormalizer{}.Normalize(rawMsg(models.VenueOKX, "", data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "ETHUSDT" {
		t.Fatalf("expected symbol from arg, got %s", snap.Symbol)
	}
}

func TestBybitNormalizer(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"envelope", `{"retCode":0,"retMsg":"OK","result":{"s":"BTCUSDT","b":[["100","1"]],"a":[["101","2"]],"ts":1700000000000,"u":5}}`},
		{"bare result", `{"s":"BTCUSDT","b":[["100","1"]],"a":[["101","2"]],"ts":1700000000000}`},
		{"stream snapshot", `{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1700000000000,"data":{"s":"BTCUSDT","b":[["100","1"]],"a":[["101","2"]],"u":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := BybitNormalizer{}.Normalize(rawMsg(models.VenueBybit, "BTCUSDT", tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.TimestampMs != 1700000000000 {
				t.Fatalf("unexpected timestamp %d", snap.TimestampMs)
			}
			if snap.Spread != 1 || snap.Symbol != "BTCUSDT" {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}

func TestBybitNormalizerErrors(t *testing.T) {
	_, err := BybitNormalizer{}.Normalize(rawMsg(models.VenueBybit, "BTCUSDT", `{"retCode":10001,"retMsg":"params error"}`))
	if err == nil {
		t.Fatalf("expected api error")
	}
	_, err = BybitNormalizer{}.Normalize(rawMsg(models.VenueBybit, "BTCUSDT", `{"topic":"orderbook.50.BTCUSDT","type":"delta","data":{"s":"BTCUSDT","b":[],"a":[]}}`))
	if !errors.Is(err, ErrIncrementalUpdate) {
		t.Fatalf("expected ErrIncrementalUpdate, got %v", err)
	}
	_, err = BybitNormalizer{}.Normalize(rawMsg(models.VenueBybit, "BTCUSDT", `{"retCode":0,"retMsg":"OK"}`))
	if !errors.Is(err, models.ErrEmptyBook) {
		t.Fatalf("expected ErrEmptyBook, got %v", err)
	}
}

func TestMockNormalizer(t *testing.T) {
	data := `{"symbol":"BTCUSDT","ts":1700000000000,"bids":[[44990,1.5,4]],"asks":[[45010,2,9]]}`
	snap, err := MockNormalizer{}.Normalize(rawMsg(models.VenueMock, "BTCUSDT", data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Bids[0].OrderCount != 4 || snap.Asks[0].OrderCount != 9 {
		t.Fatalf("order counts lost: %+v", snap)
	}
	if snap.Spread != 20 {
		t.Fatalf("expected spread 20, got %v", snap.Spread)
	}
}

func TestAllMalformedLevelsIsError(t *testing.T) {
	data := `{"lastUpdateId":1,"bids":[["x","1"]],"asks":[["1"]]}`
	_, err := BinanceNormalizer{}.Normalize(rawMsg(models.VenueBinance, "BTCUSDT", data))
	if err == nil || errors.Is(err, models.ErrEmptyBook) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestRegistryUnsupportedVenue(t *testing.T) {
	r := NewRegistry(BinanceNormalizer{})
	if _, ok := r.Get(models.VenueOKX); ok {
		t.Fatalf("okx should not be registered")
	}
	_, err := r.Normalize(rawMsg(models.VenueOKX, "BTC-USDT", `{}`))
	if !errors.Is(err, ErrUnsupportedVenue) {
		t.Fatalf("expected ErrUnsupportedVenue, got %v", err)
	}

	all := NewRegistry()
	for _, v := range []models.Venue{models.VenueBinance, models.VenueOKX, models.VenueBybit, models.VenueMock} {
		if _, ok := all.Get(v); !ok {
			t.Fatalf("default registry missing %s", v)
		}
	}
}
