package api

import "errors"

// ErrInvalidRequest is wrapped by every error that should produce a 400.
var ErrInvalidRequest = errors.New("invalid_request")

// invalidRequestError carries the offending request field, if known, so the
// handler can report it as the error's param.
type invalidRequestError struct {
	param string
	msg   string
}

func (e invalidRequestError) Error() string { return e.msg }

func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

func newInvalidParam(param, msg string) error {
	return invalidRequestError{param: param, msg: msg}
}
