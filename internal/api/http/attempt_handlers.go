package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/auth"
	"github.com/quizforge/quizforge/internal/rbac"
)

var policy = rbac.NewChecker(nil)

// identityFrom builds the caller identity: JWT subject/role when present,
// the per-attempt guest token header otherwise.
func identityFrom(r *http.Request) attempt.Identity {
	ctx := r.Context()
	return attempt.Identity{
		UserID:     auth.SubjectFromContext(ctx),
		GuestToken: r.Header.Get("X-Guest-Token"),
		Admin:      auth.RoleFromContext(ctx) == "admin",
	}
}

type startResponse struct {
	Attempt        attempt.Attempt `json:"attempt"`
	GuestToken     string          `json:"guest_token,omitempty"`
	TokenExpiresAt *time.Time      `json:"token_expires_at,omitempty"`
}

// StartAttemptHandler creates an attempt on a published quiz. Anonymous
// callers pass a guest email and receive their bearer token exactly once,
// in this response.
func StartAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		var req struct {
			GuestEmail string `json:"guest_email"`
			Retake     bool   `json:"retake"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		id := identityFrom(r)
		id.GuestEmail = req.GuestEmail

		start := svc.Start
		if req.Retake {
			start = svc.Retake
		}
		a, err := start(r.Context(), quizID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := startResponse{Attempt: a}
		if a.GuestToken != "" {
			resp.GuestToken = a.GuestToken
			exp := a.TokenExpiresAt
			resp.TokenExpiresAt = &exp
		}
		writeJSON(w, resp)
	}
}

// GetAttemptHandler serves the attempt view. Accessing an expired attempt
// auto-submits it first, so this always returns the settled state.
func GetAttemptHandler(svc *attempt.Service, quizzes attempt.QuizSource, cat attempt.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		id := identityFrom(r)
		a, items, err := svc.Get(r.Context(), attemptID, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		q, err := quizzes.Get(r.Context(), a.QuizID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		revIDs := make([]string, 0, len(items))
		for _, it := range items {
			revIDs = append(revIDs, it.RevisionID)
		}
		revs, err := cat.GetRevisions(r.Context(), revIDs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		view := buildAttemptView(q, a, items, revs)
		if left, ok, err := svc.Remaining(r.Context(), attemptID, id); err == nil && ok {
			ms := left.Milliseconds()
			view.RemainingMS = &ms
		}
		writeJSON(w, view)
	}
}

// SaveAnswerHandler overwrites one item's selection; repeated saves are
// idempotent.
func SaveAnswerHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		itemID := chi.URLParam(r, "itemID")
		var req struct {
			Selected    []int  `json:"selected"`
			Confidence  *bool  `json:"confidence"`
			TimeSpentMS *int64 `json:"time_spent_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var spent *time.Duration
		if req.TimeSpentMS != nil {
			d := time.Duration(*req.TimeSpentMS) * time.Millisecond
			spent = &d
		}
		if err := svc.SaveAnswer(r.Context(), attemptID, itemID, req.Selected, req.Confidence, spent, identityFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// SaveConfidenceHandler flips the confidence flag independently of the
// answer.
func SaveConfidenceHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		itemID := chi.URLParam(r, "itemID")
		var req struct {
			Confidence bool `json:"confidence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.SaveConfidence(r.Context(), attemptID, itemID, req.Confidence, identityFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// HeartbeatHandler overwrites the cumulative active-time counter.
func HeartbeatHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		var req struct {
			ActiveElapsedMS int64 `json:"active_elapsed_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		active := time.Duration(req.ActiveElapsedMS) * time.Millisecond
		if err := svc.SyncTime(r.Context(), attemptID, active, identityFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// NavigateHandler moves the current position and records first view of the
// target item.
func NavigateHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		var req struct {
			Position int `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := svc.Navigate(r.Context(), attemptID, req.Position, identityFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// SubmitAttemptHandler runs the single scoring pass. A repeat submit gets a
// conflict, never a second score.
func SubmitAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		a, res, err := svc.Submit(r.Context(), attemptID, identityFrom(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]any{"attempt": a, "result": res})
	}
}

// AbandonAttemptHandler marks the attempt abandoned without scoring.
func AbandonAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		if err := svc.Abandon(r.Context(), attemptID, identityFrom(r)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "abandoned"})
	}
}

// ListAttemptsHandler serves dashboards: admins see everything, students
// their own attempts.
func ListAttemptsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := attempt.ListOpts{
			QuizID:   q.Get("quiz_id"),
			Identity: q.Get("identity"),
			Status:   attempt.Status(q.Get("status")),
		}
		if v := q.Get("limit"); v != "" {
			_, _ = jsonNumber(v, &opts.Limit)
		}
		if v := q.Get("offset"); v != "" {
			_, _ = jsonNumber(v, &opts.Offset)
		}
		// Grant the cross-identity read only when the caller's role holds
		// attempt:view-all, so the handler stays safe off its usual route.
		id := identityFrom(r)
		if policy.Has(auth.RoleFromContext(r.Context()), "attempt:view-all") {
			id.Admin = true
		}
		out, err := svc.List(r.Context(), opts, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, out)
	}
}

func jsonNumber(s string, dst *int) (bool, error) {
	var n int
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return false, err
	}
	*dst = n
	return true, nil
}
