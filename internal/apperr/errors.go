// Package apperr defines the tagged error type shared by the sync engine.
// Every failure carries the action it happened under, the server-supplied
// code when one exists, and the underlying cause.
package apperr

import (
	"errors"
	"fmt"
)

// Action tags an error with the operation it happened under.
type Action string

const (
	ActionAccountAuth      Action = "account_auth"
	ActionAccountLogin     Action = "account_login"
	ActionAccountRegister  Action = "account_register"
	ActionAccountLogout    Action = "account_logout"
	ActionAccountHeartbeat Action = "account_heartbeat"
	ActionAccountInfo      Action = "account_info"
	ActionAccountSpace     Action = "account_space"
	ActionAccountProfile   Action = "account_profile"
	ActionAccountCheck     Action = "account_check"
	ActionHostInit         Action = "host_init"
	ActionSectionList      Action = "section_list"
	ActionSectionProperty  Action = "section_property"
	ActionException        Action = "exception"
)

// Error is the engine's error value. Code is the application-level code
// from the response envelope; zero means the failure was transport or
// decode level. Callers distinguish the two only via Code.
type Error struct {
	Action  Action
	Code    int
	Message string
	Trace   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code %d: %s", e.Action, e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Action, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a tagged error with a message.
func New(action Action, message string) *Error {
	return &Error{Action: action, Message: message}
}

// Wrap tags an underlying error with an action.
func Wrap(action Action, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Action: action, Message: cause.Error(), Cause: cause}
}

// Remote creates an error from a response envelope's error block.
func Remote(action Action, code int, message, trace string) *Error {
	return &Error{Action: action, Code: code, Message: message, Trace: trace}
}

// ActionOf returns the action tag of err, or ActionException when err is
// not a tagged error.
func ActionOf(err error) Action {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Action
	}
	return ActionException
}

// CodeOf returns the application-level code of err, or zero.
func CodeOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}
