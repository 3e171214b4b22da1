package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/gorilla/websocket"
)

// relayStub upgrades the connection and floods it with the given frame.
func relayStub(t *testing.T, frame []byte, count int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < count; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCloseWithUndrainedInbox(t *testing.T) {
	frame := []byte(`{"event":"chat_message","data":{"sender":"a","text":"hi","time":"t"}}`)
	srv := relayStub(t, frame, 200)
	defer srv.Close()

	c, err := Connect(wsURL(srv), logger.Default())
	if err != nil {
		t.Fatal(err)
	}

	// Nobody reads the inbox; give the flood time to fill it past
	// its buffer so the reader is parked on delivery.
	time.Sleep(100 * time.Millisecond)
	c.Close()
	c.Close()

	// Teardown must still run to completion: the inbox closes only
	// after both pumps have stopped and the socket is released.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Inbox():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("inbox never closed, teardown is stuck")
		}
	}
}

func TestInboxDelivery(t *testing.T) {
	frame := []byte(`{"event":"chat_message","data":{"sender":"a","text":"hi","time":"t"}}`)
	srv := relayStub(t, frame, 3)
	defer srv.Close()

	c, err := Connect(wsURL(srv), logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		select {
		case ev := <-c.Inbox():
			chat, ok := ev.(Chat)
			if !ok {
				t.Fatalf("event %d type = %T, want Chat", i, ev)
			}
			if chat.Text != "hi" {
				t.Errorf("text = %v", chat.Text)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}
