package waproto

import "errors"

var (
	// ErrAuthFailure is returned when the server rejects the WAUTH-2
	// response; the session is closed.
	ErrAuthFailure = errors.New("waproto: authentication rejected")

	// ErrMissingCredentials means the configuration lacks the phone
	// number or the stored password.
	ErrMissingCredentials = errors.New("waproto: missing phone or password")

	// ErrInvalidAction is returned for an unknown participant action.
	ErrInvalidAction = errors.New("waproto: invalid participant action")

	// ErrUnexpectedStanza means a handshake stanza arrived in the wrong
	// session state.
	ErrUnexpectedStanza = errors.New("waproto: stanza out of session state")
)
