package websocket

import (
	"net/url"
	"sync"
	"time"

	"github.com/classmesh/classmesh/pkg/network"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pongTime       = 60 * time.Second
	pingTime       = pongTime * 9 / 10
	writeWait      = 10 * time.Second
)

// WS wraps a gorilla websocket connection with
// serialized reads and writes and deadline handling.
type WS struct {
	id   network.Uid
	sock *websocket.Conn
	send chan []byte

	// OnMessage is called for every inbound message.
	// Should be set before Listen.
	OnMessage MessageHandler

	shutdown sync.WaitGroup
	closed   sync.Once
	done     chan struct{}

	// Done is closed when both pumps have stopped.
	Done chan struct{}
}

type MessageHandler func(message []byte, err error)

// NewClient dials the given address.
// The returned connection is inert until Listen is called.
func NewClient(address url.URL) (*WS, error) {
	sock, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return &WS{
		id:   network.NewUid(),
		sock: sock,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
		Done: make(chan struct{}),
	}, nil
}

// Listen starts the reader and writer pumps.
func (ws *WS) Listen() {
	ws.shutdown.Add(2)
	go ws.writer()
	go ws.reader()
	go func() {
		ws.shutdown.Wait()
		_ = ws.sock.Close()
		close(ws.Done)
	}()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
func (ws *WS) reader() {
	defer ws.shutdown.Done()
	ws.sock.SetReadLimit(maxMessageSize)
	_ = ws.sock.SetReadDeadline(time.Now().Add(pongTime))
	ws.sock.SetPongHandler(func(string) error {
		_ = ws.sock.SetReadDeadline(time.Now().Add(pongTime))
		return nil
	})
	for {
		_, message, err := ws.sock.ReadMessage()
		if err != nil {
			if ws.OnMessage != nil {
				ws.OnMessage(nil, err)
			}
			ws.Close()
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection
// and keeps the connection alive with periodic pings.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	defer func() {
		ticker.Stop()
		ws.shutdown.Done()
	}()
	for {
		select {
		case message := <-ws.send:
			if err := ws.write(websocket.TextMessage, message); err != nil {
				ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				ws.Close()
				return
			}
		case <-ws.done:
			_ = ws.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// write applies the write deadline before every frame.
func (ws *WS) write(t int, message []byte) error {
	if err := ws.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.sock.WriteMessage(t, message)
}

func (ws *WS) Write(data []byte) {
	select {
	case ws.send <- data:
	case <-ws.done:
	}
}

// Close tears the connection down. Safe to call multiple times.
func (ws *WS) Close() { ws.closed.Do(func() { close(ws.done) }) }

func (ws *WS) Id() network.Uid { return ws.id }
