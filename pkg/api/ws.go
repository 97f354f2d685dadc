package api

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsSink adapts a websocket connection to the room sink port. Writes are
// serialized; gorilla connections allow one concurrent writer.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// wsStream adapts a websocket connection to the room stream port. Orderly
// closes surface as io.EOF so the hub treats them as clean disconnects.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Recv() ([]byte, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}
