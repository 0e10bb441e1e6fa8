package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// session owns the write side of one observer connection. Snapshots are
// queued on a bounded channel; a full queue disconnects the observer so a
// slow reader never stalls the producer.
type session struct {
	owner    string
	conn     *websocket.Conn
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
	logger   *log.Logger
	ping     time.Duration
}

func newSession(owner string, conn *websocket.Conn, queue int, ping time.Duration, logger *log.Logger) *session {
	s := &session{
		owner:    owner,
		conn:     conn,
		outbound: make(chan []byte, queue),
		closed:   make(chan struct{}),
		logger:   logger,
		ping:     ping,
	}
	go s.writer()
	return s
}

// enqueue hands a marshalled message to the writer. Returns false when the
// queue is full or the session is closed.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.outbound <- data:
		return true
	default:
		return false
	}
}

func (s *session) writer() {
	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	for {
		select {
		case data := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
