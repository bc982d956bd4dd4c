package errors

import (
	goerrors "errors"

	"vasp-link.backend/internal/domain/entities"
)

// Error carries a wire-level OffChainError through the engine. The inbound
// path embeds it in a failure CommandResponse; the outbound path surfaces it
// to the caller.
type Error struct {
	Obj entities.OffChainError
}

func (e *Error) Error() string {
	msg := e.Obj.Type + "/" + e.Obj.Code
	if e.Obj.Message != nil {
		msg += ": " + *e.Obj.Message
	}
	return msg
}

// AsOffchainError unwraps an Error from err, if any.
func AsOffchainError(err error) (*Error, bool) {
	var oe *Error
	if goerrors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// InvalidRequest returns a command_error with the invalid-request code.
func InvalidRequest(msg string) *Error {
	return CommandError(entities.ErrorCodeInvalidRequest, "", msg)
}

// CommandError reports a document-level failure: validation, illegal
// transition, missing fields.
func CommandError(code, field, msg string) *Error {
	return newError(entities.ErrorTypeCommand, code, field, msg)
}

// ProtocolError reports an envelope-level failure: bad signature, malformed
// JSON, missing headers.
func ProtocolError(code, field, msg string) *Error {
	return newError(entities.ErrorTypeProtocol, code, field, msg)
}

func newError(typ, code, field, msg string) *Error {
	obj := entities.OffChainError{Type: typ, Code: code}
	if field != "" {
		obj.Field = &field
	}
	if msg != "" {
		obj.Message = &msg
	}
	return &Error{Obj: obj}
}
