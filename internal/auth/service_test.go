package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("u1", "author")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "u1" || c.Role != "author" {
		t.Fatalf("claims = %+v", c)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, _ := NewAuthService("secret-a").IssueJWT("u1", "admin")
	if _, err := NewAuthService("secret-b").Parse(tok); err == nil {
		t.Fatalf("token accepted across secrets")
	}
	if _, err := NewAuthService("secret-a").Parse("not.a.token"); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("test-secret")
	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}

	tok, _ := a.IssueJWT("u1", "student")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotSub != "u1" || gotRole != "student" {
		t.Fatalf("authorized call: code=%d sub=%q role=%q", rec.Code, gotSub, gotRole)
	}
}

func TestOptionalJWTLetsAnonymousThrough(t *testing.T) {
	a := NewAuthService("test-secret")
	h := OptionalJWT(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SubjectFromContext(r.Context()) != "" {
			t.Errorf("anonymous request got a subject")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous = %d", rec.Code)
	}
}
