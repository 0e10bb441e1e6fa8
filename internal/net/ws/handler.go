package ws

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"statforge"
)

type HandlerConfig struct {
	Logger       *log.Logger
	WriteQueue   int
	ReadLimit    int64
	PingInterval time.Duration
}

// Handler upgrades observer connections, seeds each with the owner's full
// state, and registers it for incremental sync traffic.
type Handler struct {
	store    *statforge.Store
	registry *Registry
	logger   *log.Logger
	upgrader websocket.Upgrader
	cfg      HandlerConfig
}

func NewHandler(store *statforge.Store, registry *Registry, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = 64
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 16
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		store:    store,
		registry: registry,
		logger:   logger,
		upgrader: upgrader,
		cfg:      cfg,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		nethttp.Error(w, "missing owner", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", owner, err)
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	sess := newSession(owner, conn, h.cfg.WriteQueue, h.cfg.PingInterval, h.logger)

	// Register before reading the snapshot so no settled change can fall
	// between the seed and the first incremental sync.
	h.registry.add(sess)
	defer func() {
		h.registry.remove(sess)
		sess.close()
	}()

	seed, err := json.Marshal(statforge.NewBulkSyncMessage(owner, h.store.Snapshots(owner)))
	if err != nil {
		h.logger.Printf("failed to marshal initial state for %s: %v", owner, err)
		return
	}
	if !sess.enqueue(seed) {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Printf("discarding malformed message from observer of %s: %v", owner, err)
			continue
		}

		switch msg.Type {
		case "heartbeat":
			now := time.Now()
			ack := heartbeatMessage{
				Ver:        statforge.ProtocolVersion,
				Type:       "heartbeat",
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
			}
			data, err := json.Marshal(ack)
			if err != nil {
				h.logger.Printf("failed to marshal heartbeat ack for %s: %v", owner, err)
				continue
			}
			if !sess.enqueue(data) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from observer of %s", msg.Type, owner)
		}
	}
}

type clientMessage struct {
	Ver    int    `json:"ver,omitempty"`
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt"`
}

type heartbeatMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}
