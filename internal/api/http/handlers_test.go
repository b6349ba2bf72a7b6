package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/auth"
	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/guest"
	"github.com/quizforge/quizforge/internal/quiz"
)

type stubQuizzes map[string]quiz.Quiz

func (s stubQuizzes) Get(_ context.Context, id string) (quiz.Quiz, error) {
	q, ok := s[id]
	if !ok {
		return quiz.Quiz{}, &attempt.Error{Kind: attempt.KindNotFound, Code: "not_found", Message: "quiz not found"}
	}
	return q, nil
}

type stubCatalog struct {
	revisions map[string]catalog.QuestionRevision
}

func (s stubCatalog) CurrentRevisions(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		out[id] = "r-" + id
	}
	return out, nil
}

func (s stubCatalog) GetRevisions(_ context.Context, ids []string) (map[string]catalog.QuestionRevision, error) {
	out := map[string]catalog.QuestionRevision{}
	for _, id := range ids {
		if r, ok := s.revisions[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s stubCatalog) Meta(_ context.Context, ids []string) (map[string]catalog.QuestionMeta, error) {
	out := map[string]catalog.QuestionMeta{}
	for _, id := range ids {
		out[id] = catalog.QuestionMeta{QuestionID: id, Points: 1}
	}
	return out, nil
}

type stubPicker struct{}

func (stubPicker) Select(context.Context, []quiz.Rule) ([]string, error) { return nil, nil }
func (stubPicker) Shuffle([]string)                                      {}
func (stubPicker) Permutation(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func testRouter(t *testing.T) (chi.Router, *attempt.Service) {
	t.Helper()
	cat := stubCatalog{revisions: map[string]catalog.QuestionRevision{}}
	for _, qid := range []string{"q1", "q2"} {
		cat.revisions["r-"+qid] = catalog.QuestionRevision{
			ID:   "r-" + qid,
			Stem: "Stem " + qid,
			Answers: []catalog.Answer{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
			},
		}
	}
	quizzes := stubQuizzes{"quiz-1": {
		ID:             "quiz-1",
		Mode:           quiz.ModeTimed,
		GenerationMode: quiz.GenerationFixed,
		QuestionIDs:    []string{"q1", "q2"},
		PassPercent:    50,
		ShowAnswers:    quiz.ShowAfterSubmit,
		Status:         quiz.StatusPublished,
	}}
	svc := attempt.NewService(attempt.NewMemoryStore(), quizzes, cat, stubPicker{},
		attempt.WithGuests(true, guest.NewIssuer(time.Hour)),
		attempt.WithLogger(log.New(io.Discard, "", 0)),
	)

	r := chi.NewRouter()
	r.Post("/api/quizzes/{quizID}/attempts", StartAttemptHandler(svc))
	r.Get("/api/attempts/{attemptID}", GetAttemptHandler(svc, quizzes, cat))
	r.Put("/api/attempts/{attemptID}/items/{itemID}/answer", SaveAnswerHandler(svc))
	r.Post("/api/attempts/{attemptID}/submit", SubmitAttemptHandler(svc))
	return r, svc
}

func doJSON(t *testing.T, r chi.Router, method, path, body, guestToken string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if guestToken != "" {
		req.Header.Set("X-Guest-Token", guestToken)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, rec.Body.String())
		}
	}
	return rec, out
}

func TestGuestAttemptFlow(t *testing.T) {
	r, _ := testRouter(t)

	rec, body := doJSON(t, r, http.MethodPost, "/api/quizzes/quiz-1/attempts",
		`{"guest_email":"g@example.com"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	var token string
	if err := json.Unmarshal(body["guest_token"], &token); err != nil || len(token) != 64 {
		t.Fatalf("guest token = %q", token)
	}
	var started struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body["attempt"], &started); err != nil || started.ID == "" {
		t.Fatalf("attempt body: %s", body["attempt"])
	}
	if strings.Contains(string(body["attempt"]), token) {
		t.Fatalf("token serialized inside attempt body")
	}

	// No token, no access.
	rec, _ = doJSON(t, r, http.MethodGet, "/api/attempts/"+started.ID, "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tokenless get = %d", rec.Code)
	}

	rec, view := doJSON(t, r, http.MethodGet, "/api/attempts/"+started.ID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d: %s", rec.Code, rec.Body.String())
	}
	var items []struct {
		ID      string `json:"id"`
		Stem    string `json:"stem"`
		Answers []struct {
			Index     int   `json:"index"`
			IsCorrect *bool `json:"is_correct"`
		} `json:"answers"`
	}
	if err := json.Unmarshal(view["items"], &items); err != nil || len(items) != 2 {
		t.Fatalf("items: %s", view["items"])
	}
	if items[0].Stem == "" || items[0].Answers[0].IsCorrect != nil {
		t.Fatalf("view leaked or lost content: %+v", items[0])
	}

	// Answer the first question correctly and submit.
	rec, _ = doJSON(t, r, http.MethodPut,
		"/api/attempts/"+started.ID+"/items/"+items[0].ID+"/answer",
		`{"selected":[0]}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer = %d: %s", rec.Code, rec.Body.String())
	}

	rec, out := doJSON(t, r, http.MethodPost, "/api/attempts/"+started.ID+"/submit", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Percent int  `json:"percent"`
		Passed  bool `json:"passed"`
	}
	if err := json.Unmarshal(out["result"], &res); err != nil {
		t.Fatalf("result: %s", out["result"])
	}
	if res.Percent != 50 || !res.Passed {
		t.Fatalf("result = %+v, want 50%% passed", res)
	}

	// Second submit conflicts.
	rec, errBody := doJSON(t, r, http.MethodPost, "/api/attempts/"+started.ID+"/submit", "", token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second submit = %d", rec.Code)
	}
	var code string
	_ = json.Unmarshal(errBody["error"], &code)
	if code != "already_submitted" {
		t.Fatalf("error code = %q", code)
	}
}

func TestSaveAnswerBadIndexRejected(t *testing.T) {
	r, _ := testRouter(t)
	rec, body := doJSON(t, r, http.MethodPost, "/api/quizzes/quiz-1/attempts",
		`{"guest_email":"g@example.com"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}
	var token string
	_ = json.Unmarshal(body["guest_token"], &token)
	var started struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body["attempt"], &started)

	_, view := doJSON(t, r, http.MethodGet, "/api/attempts/"+started.ID, "", token)
	var items []struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(view["items"], &items)

	rec, _ = doJSON(t, r, http.MethodPut,
		"/api/attempts/"+started.ID+"/items/"+items[0].ID+"/answer",
		`{"selected":[7]}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad index = %d", rec.Code)
	}
}

func TestStartUnknownQuizIs404(t *testing.T) {
	r, _ := testRouter(t)
	rec, _ := doJSON(t, r, http.MethodPost, "/api/quizzes/nope/attempts",
		`{"guest_email":"g@example.com"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown quiz = %d", rec.Code)
	}
}

// The cross-identity listing depends on the caller's role permissions, not
// on which route the handler happens to be mounted under.
func TestListAttemptsScopesByRole(t *testing.T) {
	_, svc := testRouter(t)
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2"} {
		if _, err := svc.Start(ctx, "quiz-1", attempt.Identity{UserID: uid}); err != nil {
			t.Fatalf("start %s: %v", uid, err)
		}
	}

	h := ListAttemptsHandler(svc)
	list := func(sub, role string) []attempt.Attempt {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
		req = req.WithContext(auth.WithRole(auth.WithSubject(req.Context(), sub), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("list as %s = %d: %s", role, rec.Code, rec.Body.String())
		}
		var out []attempt.Attempt
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("list as %s: bad json %q", role, rec.Body.String())
		}
		return out
	}

	if got := list("u1", "student"); len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("student list = %+v, want only own attempt", got)
	}
	if got := list("staff-1", "author"); len(got) != 2 {
		t.Fatalf("author list = %d attempts, want 2", len(got))
	}
	if got := list("root", "admin"); len(got) != 2 {
		t.Fatalf("admin list = %d attempts, want 2", len(got))
	}
}
