package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/selector"
)

type quizSaveResponse struct {
	Quiz     quiz.Quiz `json:"quiz"`
	Warnings []string  `json:"warnings,omitempty"`
}

// SaveQuizHandler creates or updates a quiz. Band gaps come back as
// warnings; overlaps and invalid enums are rejected outright.
func SaveQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		saved, warnings, err := store.Save(r.Context(), q)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, quizSaveResponse{Quiz: saved, Warnings: warnings})
	}
}

func GetQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.Get(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, q)
	}
}

// PublishQuizHandler flips a quiz to published so attempts may start.
func PublishQuizHandler(store *quiz.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		if err := store.SetStatus(r.Context(), id, quiz.StatusPublished); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "published"})
	}
}

// RuleCountsHandler reports, per rule, how many published questions the
// rule's filter matches right now. Authors use it to spot under-filled
// rules before publishing.
func RuleCountsHandler(store *quiz.SQLStore, sel *selector.Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.Get(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		type ruleCount struct {
			RuleID        string `json:"rule_id"`
			Requested     int    `json:"requested"`
			MatchingCount int    `json:"matching_count"`
		}
		out := make([]ruleCount, 0, len(q.Rules))
		for _, rule := range q.Rules {
			n, err := sel.MatchingCount(r.Context(), rule)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out = append(out, ruleCount{RuleID: rule.ID, Requested: rule.QuestionCount, MatchingCount: n})
		}
		writeJSON(w, out)
	}
}
