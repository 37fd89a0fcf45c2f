package model

import (
	"fmt"
	"strings"
)

// Group is a demographic category. The set is closed; use ParseGroup to
// convert free-form input.
type Group string

// Known groups.
const (
	GroupSC  Group = "SC"
	GroupST  Group = "ST"
	GroupOBC Group = "OBC"
	GroupGEN Group = "GEN"
)

// Groups returns every known group in canonical order.
func Groups() []Group {
	return []Group{GroupSC, GroupST, GroupOBC, GroupGEN}
}

// ParseGroup maps a tag to a Group. Matching ignores case and surrounding
// whitespace; anything outside the enumeration is rejected.
func ParseGroup(s string) (Group, error) {
	switch g := Group(strings.ToUpper(strings.TrimSpace(s))); g {
	case GroupSC, GroupST, GroupOBC, GroupGEN:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, s)
	}
}

// Valid reports whether g is one of the known groups.
func (g Group) Valid() bool {
	switch g {
	case GroupSC, GroupST, GroupOBC, GroupGEN:
		return true
	default:
		return false
	}
}

func (g Group) String() string { return string(g) }
