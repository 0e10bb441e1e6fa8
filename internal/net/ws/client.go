package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"statforge"
)

// Client follows one owner's stats over a replication connection and keeps
// a local mirror in step with the producer.
type Client struct {
	mirror *statforge.Mirror
	logger *log.Logger
}

func NewClient(mirror *statforge.Mirror, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{mirror: mirror, logger: logger}
}

// Run dials url and applies sync traffic to the mirror until the context is
// cancelled or the connection drops.
func (c *Client) Run(ctx context.Context, url string) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := c.apply(payload); err != nil {
			c.logger.Printf("discarding sync message: %v", err)
		}
	}
}

type envelope struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

func (c *Client) apply(payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	if env.Ver != statforge.ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", env.Ver)
	}

	switch env.Type {
	case statforge.MessageTypeSync:
		var msg statforge.SyncMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		return c.mirror.ApplySync(msg.Path, msg.Stat)
	case statforge.MessageTypeBulkSync:
		var msg statforge.BulkSyncMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		return c.mirror.ApplyBulkSync(msg.Stats)
	case "heartbeat":
		return nil
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}
