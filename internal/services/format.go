// Package services – reply formatting
//
// Plain-text reply rendering for command results. The relay forwards these
// bodies verbatim to the sender's messaging client, so everything here is
// short, line-oriented text.
package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-task-assistant/internal/domain"
)

var titleCaser = cases.Title(language.English)

// TitleName renders a stored (lowercase) list name for display.
func TitleName(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// FormatLists renders the /lists reply.
func FormatLists(lists []domain.List) string {
	if len(lists) == 0 {
		return "You have no lists yet. Create one with /newlist <name>."
	}
	lines := make([]string, 0, len(lists)+1)
	lines = append(lines, "Your lists:")
	for _, l := range lists {
		lines = append(lines, fmt.Sprintf("%d: %s", l.ID, TitleName(l.Name)))
	}
	return strings.Join(lines, "\n")
}

// FormatItems renders the /list reply for one list.
func FormatItems(l *domain.List, items []domain.Item) string {
	if len(items) == 0 {
		return fmt.Sprintf("List %s is empty.", TitleName(l.Name))
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, fmt.Sprintf("List %d: %s", l.ID, TitleName(l.Name)))
	for _, it := range items {
		prefix := "•"
		if it.Done {
			prefix = "✅"
		}
		lines = append(lines, fmt.Sprintf("%s %d: %s", prefix, it.ItemID, it.Text))
	}
	return strings.Join(lines, "\n")
}
