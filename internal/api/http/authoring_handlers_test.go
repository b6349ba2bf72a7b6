package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/db"
	"github.com/quizforge/quizforge/internal/quiz"
)

func authoringRouter(t *testing.T) chi.Router {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	quizzes := quiz.NewSQLStore(dbh)
	questions := catalog.NewSQLStore(dbh)

	r := chi.NewRouter()
	r.Post("/api/quizzes", SaveQuizHandler(quizzes))
	r.Get("/api/quizzes/{quizID}", GetQuizHandler(quizzes))
	r.Post("/api/quizzes/{quizID}/publish", PublishQuizHandler(quizzes))
	r.Get("/api/questions/{questionID}", GetQuestionHandler(questions))
	return r
}

// Missing quizzes and questions on the authoring surface answer 404 with the
// not_found code, never a bare 500.
func TestAuthoringMissingResourceIs404(t *testing.T) {
	r := authoringRouter(t)

	for _, tc := range []struct {
		name   string
		method string
		path   string
	}{
		{"get quiz", http.MethodGet, "/api/quizzes/does-not-exist"},
		{"publish quiz", http.MethodPost, "/api/quizzes/does-not-exist/publish"},
		{"get question", http.MethodGet, "/api/questions/does-not-exist"},
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404 (body %s)", tc.name, rec.Code, rec.Body.String())
			continue
		}
		var body errBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if body.Error != "not_found" {
			t.Errorf("%s: error code = %q, want not_found", tc.name, body.Error)
		}
	}
}

// A fixed question list repeating a question would break the attempt ledger's
// one-item-per-revision shape, so the save rejects it as bad input.
func TestSaveQuizDuplicateQuestionIs400(t *testing.T) {
	r := authoringRouter(t)

	payload := strings.NewReader(`{
		"title": "Repeats",
		"mode": "timed",
		"generation_mode": "fixed",
		"pass_percent": 60,
		"question_ids": ["q1", "q2", "q1"]
	}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quizzes", payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	var body errBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "validation" {
		t.Fatalf("error code = %q, want validation", body.Error)
	}
}
