package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"pressureflow/internal/metrics"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

const (
	bookChannel  = "books5"
	pingInterval = 20 * time.Second
)

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

func subscription(instIDs []string) subscribeRequest {
	req := subscribeRequest{Op: "subscribe", Args: make([]subscribeArg, 0, len(instIDs))}
	for _, id := range instIDs {
		req.Args = append(req.Args, subscribeArg{Channel: bookChannel, InstID: id})
	}
	return req
}

// stream runs one websocket session. It returns when the connection fails
// or ctx is cancelled; the supervisor decides whether to reconnect.
func (r *Reader) stream(ctx context.Context, instIDs []string) error {
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{
		"symbols": instIDs,
		"worker":  "books_stream",
	})

	dialer := reader.NewWebsocketDialer(r.venue.ConnectionPool, r.config.Reader.Timeout)
	conn, _, err := dialer.DialContext(ctx, r.venue.WebsocketURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.venue.WebsocketURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscription(instIDs)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info("subscribed to books stream")

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
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
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
		r.handleMessage(ctx, log, data)
	}
}

type streamEnvelope struct {
	Event string            `json:"event"`
	Code  string            `json:"code"`
	Msg   string            `json:"msg"`
	Arg   *models.OKXArg    `json:"arg"`
	Data  []json.RawMessage `json:"data"`
}

// handleMessage forwards book pushes and logs control events. It reports
// whether a message reached the raw channel.
func (r *Reader) handleMessage(ctx context.Context, log *logger.Entry, data []byte) bool {
	if string(data) == "pong" {
		return false
	}

	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).Debug("failed to decode message")
		return false
	}
	switch env.Event {
	case "":
	case "error":
		metrics.ReportLimitFromMessage(r.log, string(models.VenueOKX), "", env.Msg)
		log.WithFields(logger.Fields{"code": env.Code, "msg": env.Msg}).Warn("stream error event")
		return false
	default:
		log.WithFields(logger.Fields{"event": env.Event}).Debug("stream event")
		return false
	}
	if env.Arg == nil || len(env.Data) == 0 {
		return false
	}

	msg := models.RawSnapshotMessage{
		Venue:      models.VenueOKX,
		Symbol:     env.Arg.InstID,
		Source:     models.SourceWebsocket,
		ReceivedAt: time.Now().UTC(),
		Data:       data,
	}
	return reader.Emit(ctx, r.channels, log, msg, "okx_ws", len(env.Data))
}
