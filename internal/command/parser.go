// Package command converts validated message text into typed commands.
//
// The grammar is closed: every supported command is a distinct struct and
// Parse returns exactly one of {Command, *ParseError} for any input. Parsing
// is stateless, so identical text always yields the identical result.
// Constructing a command variant outside Parse is possible but pointless;
// all argument validation (arity, type, range, length) lives here.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Argument limits, matching what the storage layer accepts.
const (
	MaxListName = 30
	MaxItemText = 300
)

// Parse failure reasons. Stable codes recorded in COMMAND_REJECTED audit
// metadata and safe to branch on in tests.
const (
	ReasonNotACommand        = "not_a_command"
	ReasonUnknownCommand     = "unknown_command"
	ReasonMissingArgument    = "missing_argument"
	ReasonUnexpectedArgument = "unexpected_argument"
	ReasonBadID              = "bad_id"
	ReasonBadName            = "bad_name"
	ReasonNameTooLong        = "name_too_long"
	ReasonTextTooLong        = "text_too_long"
)

// Command is the closed set of parsed commands. Adding a command means
// adding a variant here, a case in Parse, and a handler in the executor;
// the type switch in the executor keeps dispatch exhaustive.
type Command interface {
	// Name returns the slash-command keyword, e.g. "/todo".
	Name() string
}

// ListLists enumerates the sender's lists. (/lists)
type ListLists struct{}

// NewList creates a list owned by the sender. (/newlist <name>)
type NewList struct{ ListName string }

// UseList selects the sender's active list. (/use <list_id>)
type UseList struct{ ListID int64 }

// AddItem appends an item to the sender's active list. (/todo <text>)
type AddItem struct{ Text string }

// ListItems enumerates the items of the active list. (/list)
type ListItems struct{}

// CompleteItem marks an item of the active list done. (/done <item_id>)
type CompleteItem struct{ ItemID int64 }

// Suggest asks the advisory engine for a plan over the sender's open items.
// It never mutates state. (/suggest)
type Suggest struct{}

func (ListLists) Name() string    { return "/lists" }
func (NewList) Name() string      { return "/newlist" }
func (UseList) Name() string      { return "/use" }
func (AddItem) Name() string      { return "/todo" }
func (ListItems) Name() string    { return "/list" }
func (CompleteItem) Name() string { return "/done" }
func (Suggest) Name() string      { return "/suggest" }

// ParseError is a terminal, non-retryable rejection of the message text.
type ParseError struct {
	Reason  string // stable code, see Reason* constants
	Message string // user-visible explanation
}

// Error implements the error interface.
func (e *ParseError) Error() string { return e.Message }

// HelpText is returned for messages that are not commands at all, so the
// sender always learns the grammar.
const HelpText = "Commands:\n" +
	"/lists\n" +
	"/newlist <name>\n" +
	"/use <list_id>\n" +
	"/todo <text>\n" +
	"/list\n" +
	"/done <item_id>\n" +
	"/suggest"

// Parse tokenizes body on the leading slash syntax and validates arguments
// per command. It never partially matches: any deviation from the grammar
// is a *ParseError with a stable reason.
func Parse(body string) (Command, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "/") {
		return nil, &ParseError{Reason: ReasonNotACommand, Message: HelpText}
	}

	// Split keyword from the rest; the argument keeps internal spaces.
	keyword, arg := body, ""
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		keyword, arg = body[:i], strings.TrimSpace(body[i+1:])
	}
	keyword = strings.ToLower(keyword)

	switch keyword {
	case "/lists":
		if arg != "" {
			return nil, errUnexpectedArg(keyword)
		}
		return ListLists{}, nil

	case "/newlist":
		name, err := parseListName(arg)
		if err != nil {
			return nil, err
		}
		return NewList{ListName: name}, nil

	case "/use":
		id, err := parsePositiveInt(arg, "list")
		if err != nil {
			return nil, err
		}
		return UseList{ListID: id}, nil

	case "/todo":
		if arg == "" {
			return nil, errMissingArg(keyword, "<text>")
		}
		if len(arg) > MaxItemText {
			return nil, &ParseError{
				Reason:  ReasonTextTooLong,
				Message: fmt.Sprintf("Task text must be at most %d characters.", MaxItemText),
			}
		}
		return AddItem{Text: arg}, nil

	case "/list":
		if arg != "" {
			return nil, errUnexpectedArg(keyword)
		}
		return ListItems{}, nil

	case "/done":
		id, err := parsePositiveInt(arg, "item")
		if err != nil {
			return nil, err
		}
		return CompleteItem{ItemID: id}, nil

	case "/suggest":
		if arg != "" {
			return nil, errUnexpectedArg(keyword)
		}
		return Suggest{}, nil

	default:
		return nil, &ParseError{
			Reason:  ReasonUnknownCommand,
			Message: fmt.Sprintf("Unknown command: %s\n\n%s", keyword, HelpText),
		}
	}
}

// parseListName normalizes and validates a list name: lowercase, 1-30 chars,
// alphanumerics plus '-' and '_'.
func parseListName(arg string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(arg))
	if name == "" {
		return "", errMissingArg("/newlist", "<name>")
	}
	if len(name) > MaxListName {
		return "", &ParseError{
			Reason:  ReasonNameTooLong,
			Message: fmt.Sprintf("List name must be 1-%d characters.", MaxListName),
		}
	}
	for _, r := range name {
		if !isNameRune(r) {
			return "", &ParseError{
				Reason:  ReasonBadName,
				Message: "List names may contain letters, digits, '-' and '_' only.",
			}
		}
	}
	return name, nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		return true
	}
	return false
}

// parsePositiveInt parses arg as a positive decimal integer ID.
func parsePositiveInt(arg, kind string) (int64, error) {
	if arg == "" {
		return 0, &ParseError{
			Reason:  ReasonMissingArgument,
			Message: fmt.Sprintf("Expected a numeric %s ID.", kind),
		}
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ParseError{
			Reason:  ReasonBadID,
			Message: fmt.Sprintf("Expected a positive numeric %s ID.", kind),
		}
	}
	return id, nil
}

func errMissingArg(keyword, placeholder string) *ParseError {
	return &ParseError{
		Reason:  ReasonMissingArgument,
		Message: fmt.Sprintf("Usage: %s %s", keyword, placeholder),
	}
}

func errUnexpectedArg(keyword string) *ParseError {
	return &ParseError{
		Reason:  ReasonUnexpectedArgument,
		Message: fmt.Sprintf("%s takes no arguments.", keyword),
	}
}
