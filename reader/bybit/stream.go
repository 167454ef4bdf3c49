package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pressureflow/internal/metrics"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

const (
	topicPrefix  = "orderbook.50."
	pingInterval = 20 * time.Second
)

func topic(symbol string) string {
	return topicPrefix + symbol
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsMessage struct {
	Op      string            `json:"op"`
	Success *bool             `json:"success"`
	RetMsg  string            `json:"ret_msg"`
	Topic   string            `json:"topic"`
	Type    string            `json:"type"`
	Ts      int64             `json:"ts"`
	Data    *models.BybitBook `json:"data"`
}

// stream runs one websocket session for symbols. Local books start empty on
// every session, so a reconnect always waits for a fresh snapshot.
func (r *Reader) stream(ctx context.Context, syms []string) error {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbols": strings.Join(syms, ","),
		"worker":  "orderbook_stream",
	})

	dialer := reader.NewWebsocketDialer(r.venue.ConnectionPool, r.config.Reader.Timeout)
	conn, _, err := dialer.DialContext(ctx, r.venue.WebsocketURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.venue.WebsocketURL, err)
	}
	defer conn.Close()

	args := make([]string, len(syms))
	books := make(map[string]*localBook, len(syms))
	for i, s := range syms {
		args[i] = topic(s)
		books[args[i]] = newLocalBook(s)
	}
	if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info("subscribed to orderbook stream")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteJSON(wsRequest{Op: "ping"}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		r.handleMessage(ctx, log, books, data)
	}
}

// handleMessage applies a push to its local book and forwards the rebuilt
// book. It reports whether a message reached the raw channel.
func (r *Reader) handleMessage(ctx context.Context, log *logger.Entry, books map[string]*localBook, data []byte) bool {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Debug("failed to decode message")
		return false
	}
	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			metrics.ReportLimitFromMessage(r.log, string(models.VenueBybit), "", msg.RetMsg)
			log.WithFields(logger.Fields{"op": msg.Op, "ret_msg": msg.RetMsg}).Warn("stream request failed")
		}
		return false
	}

	book, ok := books[msg.Topic]
	if !ok || msg.Data == nil {
		return false
	}
	if !book.apply(msg.Type, *msg.Data) {
		return false
	}

	payload, err := models.Encode(book.snapshot(msg.Ts))
	if err != nil {
		log.WithError(err).Warn("failed to marshal orderbook")
		return false
	}
	raw := models.RawSnapshotMessage{
		Venue:      models.VenueBybit,
		Symbol:     book.symbol,
		Source:     models.SourceWebsocket,
		ReceivedAt: time.Now().UTC(),
		Data:       payload,
	}
	return reader.Emit(ctx, r.channels, log, raw, "bybit_ws", book.levels())
}
