package feed

import (
	"net/http"
	"strconv"
	"time"

	"ratefeed/internal/domain"
)

// SnapshotReader serves the last valid snapshot; implemented by the exporter.
type SnapshotReader interface {
	LastSnapshot() (*domain.Snapshot, bool)
}

type Handler struct {
	snapshots SnapshotReader
}

func NewHandler(snapshots SnapshotReader) *Handler {
	return &Handler{snapshots: snapshots}
}

// GetFeed serves the last exported XML document. Before the first successful
// export it answers 503 with an empty rates element so consumers always get
// parseable XML.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshots.LastSnapshot()
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rates/>`))
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Cache-Control", "max-age=30")
	w.Header().Set("X-Generated-At", snap.GeneratedAt.Format(time.RFC3339))
	w.Header().Set("X-Item-Count", strconv.Itoa(snap.Count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snap.Content))
}
