package command

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse_Success(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"/lists", ListLists{}},
		{"  /lists  ", ListLists{}},
		{"/LISTS", ListLists{}},
		{"/newlist groceries", NewList{ListName: "groceries"}},
		{"/newlist Groceries", NewList{ListName: "groceries"}},
		{"/newlist errands_2", NewList{ListName: "errands_2"}},
		{"/use 1", UseList{ListID: 1}},
		{"/use 42", UseList{ListID: 42}},
		{"/todo Milk", AddItem{Text: "Milk"}},
		{"/todo buy milk and eggs", AddItem{Text: "buy milk and eggs"}},
		{"/list", ListItems{}},
		{"/done 7", CompleteItem{ItemID: 7}},
		{"/suggest", Suggest{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.in, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Parse(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParse_Failures(t *testing.T) {
	cases := []struct {
		in     string
		reason string
	}{
		{"hello there", ReasonNotACommand},
		{"", ReasonNotACommand},
		{"/frobnicate", ReasonUnknownCommand},
		{"/frobnicate 12", ReasonUnknownCommand},
		{"/newlist", ReasonMissingArgument},
		{"/newlist " + strings.Repeat("a", MaxListName+1), ReasonNameTooLong},
		{"/newlist bad name", ReasonBadName},
		{"/newlist café", ReasonBadName},
		{"/use", ReasonMissingArgument},
		{"/use abc", ReasonBadID},
		{"/use -3", ReasonBadID},
		{"/use 0", ReasonBadID},
		{"/use 1.5", ReasonBadID},
		{"/todo", ReasonMissingArgument},
		{"/todo " + strings.Repeat("x", MaxItemText+1), ReasonTextTooLong},
		{"/done abc", ReasonBadID},
		{"/done", ReasonMissingArgument},
		{"/lists extra", ReasonUnexpectedArgument},
		{"/list extra", ReasonUnexpectedArgument},
		{"/suggest extra", ReasonUnexpectedArgument},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			cmd, err := Parse(tc.in)
			if cmd != nil {
				t.Fatalf("Parse(%q) returned command %#v, want error", tc.in, cmd)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse(%q) error %v is not *ParseError", tc.in, err)
			}
			if pe.Reason != tc.reason {
				t.Fatalf("Parse(%q) reason = %q, want %q", tc.in, pe.Reason, tc.reason)
			}
		})
	}
}

// Parsing is total and deterministic: same text, same result, every time.
func TestParse_Deterministic(t *testing.T) {
	inputs := []string{"/done abc", "/todo Milk", "/lists", "garbage", "/use 3"}
	for _, in := range inputs {
		a, errA := Parse(in)
		b, errB := Parse(in)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("Parse(%q) not deterministic: %#v vs %#v", in, a, b)
		}
		if (errA == nil) != (errB == nil) {
			t.Fatalf("Parse(%q) error determinism: %v vs %v", in, errA, errB)
		}
		if errA != nil && errA.Error() != errB.Error() {
			t.Fatalf("Parse(%q) error text differs: %q vs %q", in, errA, errB)
		}
	}
}
