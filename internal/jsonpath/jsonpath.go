// Package jsonpath parses the dot/bracket path syntax used by replacement
// rules, e.g. "person.employedAt" or "items[0].price". It is a deliberately
// small subset of JSONPath: dot-separated keys with at most one bracketed
// index per dotted part ("items[0]" is supported, "items[0][1]" is not).
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind distinguishes object-key segments from array-index segments.
type SegmentKind uint8

const (
	// SegmentKey addresses an object member by name.
	SegmentKey SegmentKind = iota
	// SegmentIndex addresses an array element by position.
	SegmentIndex
)

// Segment is one atomic step in a path: either a named object key or a
// non-negative array index.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Key returns a key segment for the given member name.
func Key(name string) Segment {
	return Segment{Kind: SegmentKey, Key: name}
}

// Index returns an index segment for the given array position.
func Index(i int) Segment {
	return Segment{Kind: SegmentIndex, Index: i}
}

// String renders the segment the way path extraction does: keys verbatim,
// indices as "[i]".
func (s Segment) String() string {
	if s.Kind == SegmentIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is an ordered sequence of segments. Empty paths are invalid and are
// never produced by Parse.
type Path []Segment

// String joins segments with dots, attaching index segments directly to the
// preceding segment ("a.b[2].c").
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.Kind == SegmentIndex {
			b.WriteString(seg.String())
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// MalformedPathError reports a path string that cannot be split into
// segments. The grammar is permissive, so in practice this only fires for
// structurally impossible input: a closing bracket before the opening one,
// or a path that yields no segments at all.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path %q: %s", e.Path, e.Reason)
}

// Parse splits a raw path string into segments.
//
// The raw string is split on dots. A dotted part carrying a bracket pair
// contributes its key prefix (if any) followed by the contents of the first
// pair; anything after that pair is ignored. Empty parts (leading or doubled
// dots) are dropped. A token of the exact form "[<digits>]" becomes an index
// segment; every other token becomes a key segment verbatim, so "[x]" and
// "[-1]" are keys, not indices.
func Parse(raw string) (Path, error) {
	parts := strings.Split(raw, ".")
	tokens := make([]string, 0, len(parts))

	for _, part := range parts {
		if strings.Contains(part, "[") && strings.Contains(part, "]") {
			open := strings.Index(part, "[")
			closing := strings.Index(part, "]")
			if closing < open {
				return nil, &MalformedPathError{Path: raw, Reason: "closing bracket before opening bracket"}
			}
			if prefix := part[:open]; prefix != "" {
				tokens = append(tokens, prefix)
			}
			tokens = append(tokens, "["+part[open+1:closing]+"]")
			continue
		}
		if part != "" {
			tokens = append(tokens, part)
		}
	}

	if len(tokens) == 0 {
		return nil, &MalformedPathError{Path: raw, Reason: "no segments"}
	}

	path := make(Path, 0, len(tokens))
	for _, tok := range tokens {
		if idx, ok := indexToken(tok); ok {
			path = append(path, Index(idx))
		} else {
			path = append(path, Key(tok))
		}
	}
	return path, nil
}

// indexToken reports whether tok has the exact form "[<digits>]" and, if so,
// the parsed index.
func indexToken(tok string) (int, bool) {
	if len(tok) < 3 || tok[0] != '[' || tok[len(tok)-1] != ']' {
		return 0, false
	}
	inner := tok[1 : len(tok)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] < '0' || inner[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(inner)
	if err != nil {
		return 0, false
	}
	return idx, true
}
