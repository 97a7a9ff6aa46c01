package cli

import (
	"errors"

	"docchat/gateway/internal/cookiestore"
	"docchat/gateway/internal/session"
	"docchat/gateway/pkg/api"
)

var errNotLoggedIn = errors.New("not logged in, run 'docchat login' first")

// Describe turns a command error into the line shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrSessionExpired):
		return api.KindSessionExpired.Message() + " Run 'docchat login'."
	case errors.Is(err, errNotLoggedIn):
		return err.Error()
	case errors.Is(err, cookiestore.ErrLocked):
		return "Another docchat command is running. Try again when it finishes."
	}

	kind := api.KindOf(err)
	switch kind {
	case api.KindUnknown:
		return err.Error()
	case api.KindMissingSession:
		return kind.Message() + " Run 'docchat login'."
	default:
		return kind.Message()
	}
}
