package rewrite

import (
	"testing"

	"github.com/mqtap/mqtap/internal/jsonpath"
	"github.com/mqtap/mqtap/internal/jsontree"
)

func mustParseTree(t *testing.T, text string) *jsontree.Node {
	t.Helper()
	root, err := jsontree.ParseString(text)
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}
	return root
}

func mustParsePath(t *testing.T, raw string) jsonpath.Path {
	t.Helper()
	path, err := jsonpath.Parse(raw)
	if err != nil {
		t.Fatalf("Failed to parse path %q: %v", raw, err)
	}
	return path
}

// TestReplaceAll tests the recursive multi-match replacement
func TestReplaceAll(t *testing.T) {
	t.Run("SingleLocation", func(t *testing.T) {
		root := mustParseTree(t, `{"UserId":12345,"Email":"john@x.com"}`)

		count := ReplaceAll(root, mustParsePath(t, "UserId"), "{user_id}")
		if count != 1 {
			t.Errorf("Expected 1 replacement, got %d", count)
		}

		userID, _ := root.Field("UserId")
		if userID.Kind() != jsontree.KindString || userID.StringValue() != "{user_id}" {
			t.Errorf("UserId not replaced, got kind %v value %q", userID.Kind(), userID.StringValue())
		}

		email, _ := root.Field("Email")
		if email.StringValue() != "john@x.com" {
			t.Error("Sibling value was disturbed")
		}
	})

	t.Run("RelativePathAcrossArray", func(t *testing.T) {
		root := mustParseTree(t, `[{"person":{"id":"123","employedAt":"456"}},{"person":{"id":"124","employedAt":"456"}}]`)

		count := ReplaceAll(root, mustParsePath(t, "person.employedAt"), "{employed_at_id}")
		if count != 2 {
			t.Fatalf("Expected 2 replacements, got %d", count)
		}

		for i := 0; i < 2; i++ {
			el, _ := root.Element(i)
			person, _ := el.Field("person")
			employedAt, _ := person.Field("employedAt")
			if employedAt.StringValue() != "{employed_at_id}" {
				t.Errorf("Element %d employedAt = %q", i, employedAt.StringValue())
			}
			id, _ := person.Field("id")
			if id.StringValue() == "{employed_at_id}" {
				t.Errorf("Element %d id was disturbed", i)
			}
		}
	})

	t.Run("IndexedPathFirstElementOnly", func(t *testing.T) {
		root := mustParseTree(t, `{"items":[{"price":9.99},{"price":5}]}`)

		count := ReplaceAll(root, mustParsePath(t, "items[0].price"), "{price}")
		if count != 1 {
			t.Fatalf("Expected 1 replacement, got %d", count)
		}

		items, _ := root.Field("items")
		first, _ := items.Element(0)
		price0, _ := first.Field("price")
		if price0.StringValue() != "{price}" {
			t.Errorf("items[0].price = %q", price0.StringValue())
		}

		second, _ := items.Element(1)
		price1, _ := second.Field("price")
		if price1.Kind() != jsontree.KindNumber || price1.NumberLiteral() != "5" {
			t.Error("items[1].price was disturbed")
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		root := mustParseTree(t, `{"a":1}`)
		if count := ReplaceAll(root, mustParsePath(t, "missing"), "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements, got %d", count)
		}
		a, _ := root.Field("a")
		if a.NumberLiteral() != "1" {
			t.Error("Tree was mutated despite zero matches")
		}
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		root := mustParseTree(t, `{"items":[1]}`)
		if count := ReplaceAll(root, mustParsePath(t, "items[5]"), "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements, got %d", count)
		}
	})

	t.Run("KeyAgainstArray", func(t *testing.T) {
		root := mustParseTree(t, `[1,2,3]`)
		if count := ReplaceAll(root, mustParsePath(t, "price"), "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements, got %d", count)
		}
	})

	t.Run("IndexAgainstObject", func(t *testing.T) {
		root := mustParseTree(t, `{"a":{"b":1}}`)
		if count := ReplaceAll(root, mustParsePath(t, "a[0]"), "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements, got %d", count)
		}
	})

	t.Run("ReplacesNestedContainer", func(t *testing.T) {
		root := mustParseTree(t, `{"person":{"id":"123"}}`)

		count := ReplaceAll(root, mustParsePath(t, "person"), "{person}")
		if count != 1 {
			t.Fatalf("Expected 1 replacement, got %d", count)
		}

		person, _ := root.Field("person")
		if person.Kind() != jsontree.KindString || person.StringValue() != "{person}" {
			t.Error("Object value should have been replaced by a string")
		}
	})

	t.Run("AnchorsBelowRoot", func(t *testing.T) {
		root := mustParseTree(t, `{"outer":{"target":1}}`)
		if count := ReplaceAll(root, mustParsePath(t, "target"), "{x}"); count != 1 {
			t.Errorf("Expected 1 replacement from the nested anchor, got %d", count)
		}
	})

	t.Run("ReplacedSubtreeNotRevisited", func(t *testing.T) {
		root := mustParseTree(t, `{"a":{"a":1}}`)

		count := ReplaceAll(root, mustParsePath(t, "a"), "{x}")
		if count != 1 {
			t.Errorf("Expected 1 replacement, got %d", count)
		}

		a, _ := root.Field("a")
		if a.Kind() != jsontree.KindString {
			t.Error("Outer value should have become a string")
		}
	})

	t.Run("LeadingIndexMatchesEveryArray", func(t *testing.T) {
		root := mustParseTree(t, `[[1,2],[3]]`)

		count := ReplaceAll(root, mustParsePath(t, "[0]"), "{x}")
		if count != 2 {
			t.Errorf("Expected 2 replacements (outer array and surviving inner array), got %d", count)
		}
	})

	t.Run("NilRootAndEmptyPath", func(t *testing.T) {
		if count := ReplaceAll(nil, mustParsePath(t, "a"), "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements on nil root, got %d", count)
		}
		root := mustParseTree(t, `{"a":1}`)
		if count := ReplaceAll(root, jsonpath.Path{}, "{x}"); count != 0 {
			t.Errorf("Expected 0 replacements for empty path, got %d", count)
		}
	})

	t.Run("CountMatchesDeepDuplication", func(t *testing.T) {
		root := mustParseTree(t, `{"a":{"id":1},"b":{"a":{"id":2}},"c":[{"a":{"id":3}}]}`)

		count := ReplaceAll(root, mustParsePath(t, "a.id"), "{id}")
		if count != 3 {
			t.Errorf("Expected 3 replacements across every anchor, got %d", count)
		}
	})
}
