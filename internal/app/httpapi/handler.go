// Package httpapi exposes the split ledger REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/R3E-Network/splitpay/internal/app"
	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/metrics"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
)

// callerHeader carries the authenticated caller address. The gateway in front
// of this service is responsible for verifying it.
const callerHeader = "X-Caller-Address"

// handler bundles HTTP endpoints for the split service.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the split REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/splits", h.splits)
	mux.HandleFunc("/splits/", h.splitResources)
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// splitView is the wire form of a split's query projection.
type splitView struct {
	ID                   string    `json:"id"`
	Initiator            string    `json:"initiator"`
	Purpose              string    `json:"purpose"`
	Asset                string    `json:"asset"`
	TotalAmount          uint64    `json:"total_amount"`
	NumParticipants      uint64    `json:"num_participants"`
	AmountPerParticipant uint64    `json:"amount_per_participant"`
	Deadline             time.Time `json:"deadline"`
	TotalContributed     uint64    `json:"total_contributed"`
	IsActive             bool      `json:"is_active"`
	IsCancelled          bool      `json:"is_cancelled"`
}

func viewOf(d domain.Details) splitView {
	return splitView{
		ID:                   d.ID,
		Initiator:            d.Initiator,
		Purpose:              d.Purpose,
		Asset:                d.Asset,
		TotalAmount:          d.TotalAmount,
		NumParticipants:      d.NumParticipants,
		AmountPerParticipant: d.AmountPerParticipant,
		Deadline:             d.Deadline,
		TotalContributed:     d.TotalContributed,
		IsActive:             d.IsActive,
		IsCancelled:          d.IsCancelled,
	}
}

func (h *handler) splits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var payload struct {
			Purpose         string `json:"purpose"`
			Asset           string `json:"asset"`
			TotalAmount     uint64 `json:"total_amount"`
			NumParticipants uint64 `json:"num_participants"`
			DurationDays    uint64 `json:"duration_days"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := h.app.Splits.Create(r.Context(), caller, payload.Purpose, payload.Asset,
			payload.TotalAmount, payload.NumParticipants, payload.DurationDays)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(domain.DetailsOf(created)))

	case http.MethodGet:
		initiator := strings.TrimSpace(r.URL.Query().Get("initiator"))
		if initiator == "" {
			caller, err := callerOf(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("initiator query or %s header required", callerHeader))
				return
			}
			initiator = caller
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer"))
				return
			}
			limit = parsed
		}

		records, err := h.app.Splits.List(r.Context(), initiator, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]splitView, 0, len(records))
		for _, rec := range records {
			views = append(views, viewOf(domain.DetailsOf(rec)))
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) splitResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/splits"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	splitID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		details, err := h.app.Splits.Get(r.Context(), splitID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(details))
		return
	}

	switch parts[1] {
	case "contributions":
		h.contribute(w, r, splitID)
	case "cancel":
		h.cancel(w, r, splitID)
	case "withdraw":
		h.withdraw(w, r, splitID)
	case "contributors":
		h.contributor(w, r, splitID, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) contribute(w http.ResponseWriter, r *http.Request, splitID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Amount        uint64 `json:"amount"`
		AttachedValue uint64 `json:"attached_value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Splits.Contribute(r.Context(), splitID, caller, payload.Amount, payload.AttachedValue)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(domain.DetailsOf(updated)))
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request, splitID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Splits.Cancel(r.Context(), splitID, caller)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(domain.DetailsOf(updated)))
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request, splitID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := h.app.Splits.Withdraw(r.Context(), splitID, caller)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SplitID     string `json:"split_id"`
		Participant string `json:"participant"`
		Amount      uint64 `json:"amount"`
	}{
		SplitID:     splitID,
		Participant: caller,
		Amount:      amount,
	})
}

func (h *handler) contributor(w http.ResponseWriter, r *http.Request, splitID string, rest []string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	participant := rest[0]

	contributed, err := h.app.Splits.HasContributed(r.Context(), splitID, participant)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	share, err := h.app.Splits.AmountPerParticipant(r.Context(), splitID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SplitID              string `json:"split_id"`
		Participant          string `json:"participant"`
		HasContributed       bool   `json:"has_contributed"`
		AmountPerParticipant uint64 `json:"amount_per_participant"`
	}{
		SplitID:              splitID,
		Participant:          participant,
		HasContributed:       contributed,
		AmountPerParticipant: share,
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps lifecycle errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, splitsvc.ErrSplitNotFound):
		return http.StatusNotFound
	case errors.Is(err, splitsvc.ErrNotInitiator):
		return http.StatusForbidden
	case errors.Is(err, splitsvc.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, splitsvc.ErrSplitNotActive),
		errors.Is(err, splitsvc.ErrSplitCancelled),
		errors.Is(err, splitsvc.ErrSplitClosed),
		errors.Is(err, splitsvc.ErrAlreadyContributed),
		errors.Is(err, splitsvc.ErrDeadlinePassed),
		errors.Is(err, splitsvc.ErrNoFunds):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func callerOf(r *http.Request) (string, error) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" {
		return "", fmt.Errorf("%s header required", callerHeader)
	}
	return caller, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
