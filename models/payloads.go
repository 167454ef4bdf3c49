package models

import "encoding/json"

// Wire shapes of the venue payloads carried in RawSnapshotMessage.Data.
// Readers encode them, processor normalizers decode them.

// BinanceDepthPayload covers the REST depth response and the partial depth stream.
type BinanceDepthPayload struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Symbol       string     `json:"s,omitempty"`
	EventTime    int64      `json:"E,omitempty"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// OKXBooksMessage covers the REST /market/books envelope and websocket pushes.
// Entries are [price, size, deprecated, orderCount].
type OKXBooksMessage struct {
	Code   string    `json:"code,omitempty"`
	Msg    string    `json:"msg,omitempty"`
	Event  string    `json:"event,omitempty"`
	Arg    *OKXArg   `json:"arg,omitempty"`
	Action string    `json:"action,omitempty"`
	Data   []OKXBook `json:"data"`
}

type OKXArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type OKXBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// BybitOrderBookMessage covers the v5 REST envelope (retCode/result) and
// websocket pushes (topic/type/data).
type BybitOrderBookMessage struct {
	RetCode *int       `json:"retCode,omitempty"`
	RetMsg  string     `json:"retMsg,omitempty"`
	Result  *BybitBook `json:"result,omitempty"`
	Topic   string     `json:"topic,omitempty"`
	Type    string     `json:"type,omitempty"`
	Ts      int64      `json:"ts,omitempty"`
	Data    *BybitBook `json:"data,omitempty"`
}

type BybitBook struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	Ts       int64      `json:"ts,omitempty"`
	UpdateID int64      `json:"u,omitempty"`
}

// MockBookPayload is produced by the synthetic venue. Entries are [price, quantity, orders].
type MockBookPayload struct {
	Symbol string       `json:"symbol"`
	Ts     int64        `json:"ts"`
	Bids   [][3]float64 `json:"bids"`
	Asks   [][3]float64 `json:"asks"`
}

// Encode marshals a payload for RawSnapshotMessage.Data.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
