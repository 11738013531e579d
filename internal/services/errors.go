// Package services implements the command executor and the advisory engine.
// This file centralizes the domain error values so that they can be
// consistently returned by the executor and mapped to user-visible rejection
// messages (and COMMAND_REJECTED audit reasons) by the pipeline.
package services

import "errors"

// Domain errors. Each one is a terminal per-request outcome for a
// syntactically valid command whose preconditions failed.
var (
	// ErrNoActiveList is returned when a command needs an active list but
	// the sender has never run /use.
	ErrNoActiveList = errors.New("no active list selected")

	// ErrNotFound indicates the referenced list or item does not exist or is
	// not visible to the sender.
	ErrNotFound = errors.New("not found")

	// ErrNotOwner indicates the sender's active list points at a list owned
	// by someone else. Commands cannot produce this state; it guards against
	// out-of-band edits to the preferences table.
	ErrNotOwner = errors.New("not the owner of this list")

	// ErrDuplicateName is returned when the sender already has a list with
	// the requested name.
	ErrDuplicateName = errors.New("list already exists")
)

// Reason returns the stable audit/metadata code for a domain error, or ""
// for errors outside the domain taxonomy.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveList):
		return "no_active_list"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	}
	return ""
}
