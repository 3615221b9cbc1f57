package cryptocompare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// newEchoServer upgrades, reads one subscription frame, replies with a
// heartbeat and publishes the frame it received on got.
func newEchoServer(t *testing.T, got chan<- SubscriptionFrame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var frame SubscriptionFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		got <- frame

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"TYPE":"999"}`))
		// hold the connection until the client closes it
		_, _, _ = conn.ReadMessage()
	}))
}

// go test -v --run TestWSDialer
func TestWSDialer(t *testing.T) {
	got := make(chan SubscriptionFrame, 1)
	srv := newEchoServer(t, got)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := NewWSDialer(url, 2*time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := SubscriptionFrame{Action: ActionSubAdd, Subs: []string{"5~CCCAGG~BTC~USD"}}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case f := <-got:
		if f.Action != ActionSubAdd || len(f.Subs) != 1 || f.Subs[0] != "5~CCCAGG~BTC~USD" {
			t.Fatalf("server received %+v", f)
		}
	case <-ctx.Done():
		t.Fatal("server never received the frame")
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Type.IsHeartbeat() {
		t.Fatalf("expected heartbeat, got %s", env.Type)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read error after close")
	}
}

func TestWSDialerFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dialer := NewWSDialer("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, zap.NewNop())
	if _, err := dialer.Dial(context.Background()); err == nil {
		t.Fatal("expected dial error against a non-websocket endpoint")
	}
}
