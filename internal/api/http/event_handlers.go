package http

import (
	"net/http"
	"strconv"

	"github.com/quizforge/quizforge/internal/eventlog"
)

// ListEventsHandler pages through the append-only lifecycle log. Callers
// poll with ?after=<seq> to tail new events.
func ListEventsHandler(events *eventlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		out, err := events.Since(r.Context(), after, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, out)
	}
}
