package api

import "net/http"

func (h *APIHandler) SiteStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.SiteStatistics(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) VisitStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.VisitStats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
