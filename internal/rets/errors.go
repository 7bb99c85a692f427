package rets

import "errors"

// Sentinel errors for the taxonomy in spec.md §7.
var (
	ErrLoginRejected    = errors.New("rets: login rejected")
	ErrNoCookie         = errors.New("rets: no session cookie returned")
	ErrTransport        = errors.New("rets: transport error")
	ErrMalformedResponse = errors.New("rets: malformed response")
)

// ProtocolError wraps a non-zero RETS ReplyCode.
type ProtocolError struct {
	ReplyCode string
	ReplyText string
}

func (e *ProtocolError) Error() string {
	return "rets: reply code " + e.ReplyCode + ": " + e.ReplyText
}

// UnauthorizedQueryError describes a ReplyCode=20207 "Unauthorized Query"
// reply and the class/resource named in its text. Nothing in this package
// returns it; callers detect that reply with IsUnauthorizedQuery, which
// returns the class and resource directly.
type UnauthorizedQueryError struct {
	ProtocolError
	Resource string
	Class    string
}
