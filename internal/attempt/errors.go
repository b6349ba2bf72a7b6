package attempt

import "errors"

// Kind classifies a domain failure. The HTTP layer maps kinds to status
// codes; none of these are retried by the core.
type Kind string

const (
	KindValidation    Kind = "validation"     // malformed input, rejected before any write
	KindAuthorization Kind = "authorization"  // caller lacks rights; never reveals existence
	KindStateConflict Kind = "state_conflict" // operation illegal in current state
	KindCapacityLimit Kind = "capacity_limit" // attempt-count or cooldown rule violated
	KindNotFound      Kind = "not_found"
)

// Error is a typed domain error: a kind for dispatch, a stable machine code
// and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func errValidation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func errNotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func errNotAuthorized() *Error {
	return &Error{Kind: KindAuthorization, Code: "not_authorized", Message: "not authorized for this attempt"}
}

func errAlreadyInProgress() *Error {
	return &Error{Kind: KindStateConflict, Code: "already_in_progress", Message: "an attempt is already in progress for this quiz"}
}

func errAttemptsExhausted() *Error {
	return &Error{Kind: KindCapacityLimit, Code: "attempts_exhausted", Message: "maximum number of attempts reached"}
}

func errCooldownActive() *Error {
	return &Error{Kind: KindCapacityLimit, Code: "cooldown_active", Message: "minimum delay between attempts has not passed"}
}

func errNotInProgress() *Error {
	return &Error{Kind: KindStateConflict, Code: "not_in_progress", Message: "attempt is no longer in progress"}
}

func errAlreadySubmitted() *Error {
	return &Error{Kind: KindStateConflict, Code: "already_submitted", Message: "attempt was already submitted"}
}

func errTimedOut() *Error {
	return &Error{Kind: KindStateConflict, Code: "timed_out", Message: "attempt time limit has expired"}
}
