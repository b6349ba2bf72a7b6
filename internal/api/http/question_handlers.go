package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/catalog"
)

type questionSaveResponse struct {
	Question catalog.Question         `json:"question"`
	Revision catalog.QuestionRevision `json:"revision"`
}

// SaveQuestionHandler creates a question or edits an existing one. Edits
// that change graded content mint a new immutable revision; running
// attempts keep the revision they froze.
func SaveQuestionHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.SaveInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		q, rev, err := store.SaveQuestion(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, questionSaveResponse{Question: q, Revision: rev})
	}
}

func GetQuestionHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, q)
	}
}

// SetQuestionStatusHandler publishes or soft-deletes a question. Deleted
// questions leave the selection pool but frozen attempts still score them.
func SetQuestionStatusHandler(store *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status catalog.QuestionStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "questionID")
		if err := store.SetQuestionStatus(r.Context(), id, req.Status); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": string(req.Status)})
	}
}
