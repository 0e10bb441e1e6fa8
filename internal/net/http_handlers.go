package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"statforge"
	"statforge/internal/net/ws"
	"statforge/stats"
)

type HTTPHandlerConfig struct {
	Logger *log.Logger
}

// NewHTTPHandler assembles the server's HTTP surface: a health probe,
// a diagnostics endpoint, owner stat reads, and the websocket
// replication endpoint.
func NewHTTPHandler(store *statforge.Store, wsHandler *ws.Handler, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string               `json:"status"`
			ServerTime int64                `json:"serverTime"`
			Owners     int                  `json:"owners"`
			Store      statforge.StoreStats `json:"store"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Owners:     len(store.Owners()),
			Store:      store.Stats(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/stats", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		owner := r.URL.Query().Get("owner")
		if owner == "" {
			httpError(w, "missing owner", nethttp.StatusBadRequest)
			return
		}

		snapshots := store.Snapshots(owner)
		values := make(map[string]float64, len(snapshots))
		for path, snapshot := range snapshots {
			values[path] = snapshot.Value()
		}

		payload := struct {
			Owner  string                    `json:"owner"`
			Values map[string]float64        `json:"values"`
			Stats  map[string]stats.Snapshot `json:"stats"`
		}{
			Owner:  owner,
			Values: values,
			Stats:  snapshots,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/ws", wsHandler.Handle)

	return mux
}

func httpError(w nethttp.ResponseWriter, message string, code int) {
	nethttp.Error(w, message, code)
}
