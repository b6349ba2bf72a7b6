package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quizforge/quizforge/internal/attempt"
	"github.com/quizforge/quizforge/internal/catalog"
	"github.com/quizforge/quizforge/internal/quiz"
)

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeDomainError maps the error taxonomy onto status codes. Authorization
// deliberately carries no hint whether the attempt exists.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	msg := "internal error"
	// Store sentinels from the authoring surface map to 404 like the typed
	// not-found kind below.
	if errors.Is(err, quiz.ErrNotFound) || errors.Is(err, catalog.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if errors.Is(err, quiz.ErrInvalid) {
		writeErr(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	switch attempt.KindOf(err) {
	case attempt.KindValidation:
		status, code, msg = http.StatusBadRequest, attempt.CodeOf(err), err.Error()
	case attempt.KindAuthorization:
		status, code, msg = http.StatusForbidden, attempt.CodeOf(err), err.Error()
	case attempt.KindStateConflict:
		status, code, msg = http.StatusConflict, attempt.CodeOf(err), err.Error()
	case attempt.KindCapacityLimit:
		status, code, msg = http.StatusUnprocessableEntity, attempt.CodeOf(err), err.Error()
	case attempt.KindNotFound:
		status, code, msg = http.StatusNotFound, attempt.CodeOf(err), err.Error()
	}
	writeErr(w, status, code, msg)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
