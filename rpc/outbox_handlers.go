package rpc

import (
	"context"
	"net/http"

	"peershield/services/outbox"
)

const defaultPendingLimit = 100

// Outbox exposes queued transfer instructions to the asset layer.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]outbox.Entry, error)
	PendingCount(ctx context.Context) (int, error)
	Ack(ctx context.Context, ids []int64) (int, error)
}

type PendingParams struct {
	Limit int `json:"limit,omitempty"`
}

type PendingResult struct {
	Entries []outbox.Entry `json:"entries"`
	Total   int            `json:"total"`
}

type AckParams struct {
	IDs []int64 `json:"ids"`
}

type AckResult struct {
	Acknowledged int `json:"acknowledged"`
	Remaining    int `json:"remaining"`
}

func (s *Server) requireOutbox(w http.ResponseWriter, req *RPCRequest) bool {
	if s.outbox == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "outbox unavailable", nil)
		return false
	}
	return true
}

func (s *Server) handleOutboxPending(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.requireOutbox(w, req) {
		return
	}
	var params PendingParams
	if len(req.Params) > 0 {
		if err := decodeParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
			return
		}
	}
	if params.Limit <= 0 {
		params.Limit = defaultPendingLimit
	}
	entries, err := s.outbox.Pending(r.Context(), params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load outbox", err.Error())
		return
	}
	total, err := s.outbox.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to count outbox", err.Error())
		return
	}
	s.metrics.SetOutboxPending(total)
	if entries == nil {
		entries = []outbox.Entry{}
	}
	writeResult(w, req.ID, PendingResult{Entries: entries, Total: total})
}

func (s *Server) handleOutboxAck(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.requireOutbox(w, req) {
		return
	}
	var params AckParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	if len(params.IDs) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "ids required", nil)
		return
	}
	acked, err := s.outbox.Ack(r.Context(), params.IDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to acknowledge transfers", err.Error())
		return
	}
	remaining, err := s.outbox.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to count outbox", err.Error())
		return
	}
	s.metrics.SetOutboxPending(remaining)
	s.logger.Info("outbox acknowledged", "acknowledged", acked, "remaining", remaining)
	writeResult(w, req.ID, AckResult{Acknowledged: acked, Remaining: remaining})
}
