package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 512 * 1024
	sendBufferSize = 256
	closeReason    = "session closed"
)

// Session is one websocket connection. A single read goroutine feeds the hub and a single
// write goroutine drains the send buffer, so delivery to one connection is FIFO.
type Session struct {
	id      string
	subject string
	conn    *websocket.Conn
	hub     *Hub
	logger  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id, subject string, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:      id,
		subject: subject,
		conn:    conn,
		hub:     hub,
		logger:  logger.With(zap.String("handle", id)),
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Send queues a message without blocking. It drops the message when the session is
// closed or its buffer is full.
func (s *Session) Send(message Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn("outbound message encode failed", zap.String("event", message.Event), zap.Error(err))
		return false
	}
	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("outbound message dropped", zap.String("event", message.Event), zap.String("reason", "buffer_full"))
		return false
	}
}

// Run serves the session until the peer disconnects or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	client := Client{Conn: s, Subject: s.subject}
	s.hub.Connect(client)
	defer s.hub.Disconnect(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	s.readPump(client)
	s.close()
	<-writerDone
}

func (s *Session) readPump(client Client) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Debug("inbound frame rejected", zap.Error(err))
			continue
		}
		if err := s.hub.Handle(client, frame); err != nil {
			level := zap.DebugLevel
			if !errors.Is(err, ErrUnknownEvent) {
				level = zap.WarnLevel
			}
			s.logger.Log(level, "inbound event rejected", zap.String("event", frame.Event), zap.Error(err))
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason)
			_ = s.conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
