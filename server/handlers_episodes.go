package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/d3vgru/easy-peasy-bot/recap"
	"github.com/d3vgru/easy-peasy-bot/telemetry"
)

const maxListLimit = 200

// listEpisodes returns the most recently announced records.
// GET /episodes?limit=N (default 20, capped at 200).
func (h *handlers) listEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	recs, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// getEpisode returns the best match for a production code such as S01E05.
func (h *handlers) getEpisode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, _, ok := recap.ParseCode(code); !ok {
		http.Error(w, "invalid production code", http.StatusBadRequest)
		return
	}
	rec, found, err := h.ledger.FindByProductionCode(r.Context(), code)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// listSeason returns a season's records in episode order.
func (h *handlers) listSeason(w http.ResponseWriter, r *http.Request) {
	season, ok := recap.ParseSeason(chi.URLParam(r, "season"))
	if !ok || season < 0 {
		http.Error(w, "invalid season", http.StatusBadRequest)
		return
	}
	recs := []recap.Record{}
	for rec, err := range h.ledger.FindBySeason(r.Context(), season) {
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		recs = append(recs, rec)
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.LoggerWithCorr(r.Context()).Error("ledger read failed",
		slog.String("component", "http"), slog.String("path", r.URL.Path), slog.Any("err", err))
	http.Error(w, "datastore unavailable", http.StatusServiceUnavailable)
}
