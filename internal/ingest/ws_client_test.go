package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startFeed runs a test feed that records the subscribe frame and then
// sends the given payloads.
func startFeed(t *testing.T, payloads [][]byte, gotSub chan<- subscribeRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub subscribeRequest
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		if gotSub != nil {
			gotSub <- sub
		}

		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
				return
			}
		}

		// Keep connection open until client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_SubscribeAndReceive(t *testing.T) {
	candle := CandleMessage{
		Symbol:      "600519.SH",
		TimestampMs: 1700000000000,
		Open:        100, High: 102, Low: 99, Close: 101,
		Volume: 1_000_000, ATR: 1.5,
	}
	payload, _ := json.Marshal(candle)

	gotSub := make(chan subscribeRequest, 1)
	server := startFeed(t, [][]byte{payload}, gotSub)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), []string{"600519.SH"}, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	select {
	case sub := <-gotSub:
		if sub.Op != "subscribe" || len(sub.Symbols) != 1 || sub.Symbols[0] != "600519.SH" {
			t.Errorf("unexpected subscribe frame: %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw subscribe frame")
	}

	select {
	case got := <-client.Candles():
		if got != candle {
			t.Errorf("candle mismatch: got %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for candle")
	}
}

func TestWSClient_SkipsMalformedFrames(t *testing.T) {
	good := CandleMessage{Symbol: "000001.SZ", TimestampMs: 1700000000000, Close: 12.5}
	goodPayload, _ := json.Marshal(good)

	payloads := [][]byte{
		[]byte("{not json"),
		[]byte(`{"symbol":"","timestamp_ms":0}`),
		goodPayload,
	}

	server := startFeed(t, payloads, nil)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), []string{"000001.SZ"}, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	select {
	case got := <-client.Candles():
		// Malformed frames must be skipped, so the first delivery is the good one.
		if got.Symbol != "000001.SZ" {
			t.Errorf("expected good candle, got %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for candle")
	}
}

func TestWSClient_CloseIdempotent(t *testing.T) {
	server := startFeed(t, nil, nil)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// Channel must be closed after Close.
	select {
	case _, ok := <-client.Candles():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed")
	}
}

func TestWSClient_DialFailure(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1/feed", nil, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
