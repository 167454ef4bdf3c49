package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/models"
)

func minimalConfig(restURL string) *config.Config {
	cfg := config.Default()
	cfg.Reader.Timeout = time.Second
	cfg.Reader.DepthLimit = 5
	cfg.Venues.Binance.Enabled = true
	cfg.Venues.Binance.RestURL = restURL
	cfg.Venues.Binance.WebsocketURL = ""
	cfg.Venues.Binance.ConnectionPool = config.ConnectionPoolConfig{
		MaxIdleConns:    1,
		MaxConnsPerHost: 1,
		IdleConnTimeout: time.Second,
	}
	return &cfg
}

func TestNewReader(t *testing.T) {
	cfg := minimalConfig("https://example.com/api/v3")
	r := NewReader(cfg, channel.NewChannels(1), []string{"BTCUSDT"}, nil)
	if r == nil {
		t.Fatal("NewReader returned nil")
	}
	if r.client.BaseURL != "https://example.com" {
		t.Fatalf("expected base url without path, got %s", r.client.BaseURL)
	}
}

func TestNewReaderLeavesStreamEndpointAlone(t *testing.T) {
	before := binance.BaseWsMainURL
	cfg := minimalConfig("https://example.com")
	cfg.Venues.Binance.WebsocketURL = "wss://elsewhere.example/ws"
	NewReader(cfg, channel.NewChannels(1), []string{"BTCUSDT"}, nil)
	if binance.BaseWsMainURL != before {
		t.Fatalf("NewReader changed the stream endpoint to %s", binance.BaseWsMainURL)
	}
}

func TestConfigureStreams(t *testing.T) {
	before := binance.BaseWsMainURL
	t.Cleanup(func() { binance.BaseWsMainURL = before })

	ConfigureStreams("")
	if binance.BaseWsMainURL != before {
		t.Fatalf("empty url must keep the default, got %s", binance.BaseWsMainURL)
	}
	ConfigureStreams("wss://stream.example/ws")
	if binance.BaseWsMainURL != "wss://stream.example/ws" {
		t.Fatalf("unexpected stream endpoint %s", binance.BaseWsMainURL)
	}
}

func TestStartDisabled(t *testing.T) {
	cfg := minimalConfig("https://example.com")
	cfg.Venues.Binance.Enabled = false
	r := NewReader(cfg, channel.NewChannels(1), []string{"BTCUSDT"}, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for disabled venue")
	}
}

func TestFetchOrderbook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/v3/depth" {
			http.NotFound(w, req)
			return
		}
		if req.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected symbol %q", req.URL.Query().Get("symbol"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lastUpdateId":7,"bids":[["100.0","1.5"]],"asks":[["101.0","2.0"]]}`))
	}))
	defer srv.Close()

	ch := channel.NewChannels(1)
	r := NewReader(minimalConfig(srv.URL+"/api/v3"), ch, []string{"BTCUSDT"}, nil)
	r.ctx = context.Background()
	r.fetchOrderbook("BTCUSDT")

	select {
	case msg := <-ch.Raw:
		if msg.Venue != models.VenueBinance || msg.Source != models.SourceREST {
			t.Fatalf("unexpected message identity: %+v", msg)
		}
		var p models.BinanceDepthPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if p.LastUpdateID != 7 || len(p.Bids) != 1 || p.Bids[0][0] != "100.0" || p.Asks[0][1] != "2.0" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}
