package jsonpath

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Path
	}{
		{"single key", "UserId", Path{Key("UserId")}},
		{"dotted keys", "person.employedAt", Path{Key("person"), Key("employedAt")}},
		{"key with index", "items[0]", Path{Key("items"), Index(0)}},
		{"mixed", "a.b[2].c", Path{Key("a"), Key("b"), Index(2), Key("c")}},
		{"leading index", "[0]", Path{Index(0)}},
		{"leading index then key", "[1].name", Path{Index(1), Key("name")}},
		{"leading dot dropped", ".a", Path{Key("a")}},
		{"doubled dots dropped", "a..b", Path{Key("a"), Key("b")}},
		{"second bracket pair ignored", "items[0][1]", Path{Key("items"), Index(0)}},
		{"non-numeric bracket is a key", "a[x]", Path{Key("a"), Key("[x]")}},
		{"negative index is a key", "a[-1]", Path{Key("a"), Key("[-1]")}},
		{"empty brackets are a key", "a[]", Path{Key("a"), Key("[]")}},
		{"unclosed bracket kept verbatim", "a[0", Path{Key("a[0")}},
		{"multi-digit index", "rows[12].cell", Path{Key("rows"), Index(12), Key("cell")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tc.raw, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("Parse(%q) segment %d = %+v, want %+v", tc.raw, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", ".", "...", "a]0["} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got none", raw)
			}
			var malformed *MalformedPathError
			if !errors.As(err, &malformed) {
				t.Errorf("Parse(%q) error type = %T, want *MalformedPathError", raw, err)
			}
		})
	}
}

func TestPathString(t *testing.T) {
	for _, raw := range []string{"a.b[2].c", "items[0]", "person.employedAt"} {
		path, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", raw, err)
		}
		if got := path.String(); got != raw {
			t.Errorf("Parse(%q).String() = %q", raw, got)
		}
	}

	// A leading index has no preceding segment to attach to.
	path, err := Parse("[0].name")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := path.String(); got != "[0].name" {
		t.Errorf("String() = %q, want %q", got, "[0].name")
	}
}
