package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/snapshot"
	"github.com/dukerupert/rota/internal/store"
)

type Snapshots interface {
	Run(ctx context.Context) (*model.Snapshot, error)
	Verify(ctx context.Context, id int64) (*snapshot.Verification, error)
	List(ctx context.Context, limit int) ([]model.Snapshot, error)
	Status() snapshot.Status
}

type SnapshotHandler struct {
	snapshots Snapshots
	logger    *slog.Logger
}

func NewSnapshotHandler(snapshots Snapshots, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, logger: logger}
}

// List returns the manager status and up to ?limit= recent snapshots.
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit < 1 || limit > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	list, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if list == nil {
		list = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    h.snapshots.Status(),
		"snapshots": list,
	})
}

// Create takes a snapshot now.
func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Run(r.Context())
	if err != nil {
		h.writeSnapshotError(w, "run snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *SnapshotHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot id")
		return
	}

	v, err := h.snapshots.Verify(r.Context(), id)
	if err != nil {
		h.writeSnapshotError(w, "verify snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *SnapshotHandler) writeSnapshotError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, snapshot.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "snapshot not found")
	case errors.Is(err, snapshot.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, snapshot.ErrBadSnapshot):
		writeError(w, http.StatusUnprocessableEntity, "snapshot could not be decrypted")
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
	}
}
