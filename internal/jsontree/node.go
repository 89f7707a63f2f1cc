// Package jsontree holds a parsed JSON document as a mutable tree of typed
// nodes. Unlike a map-based decode it preserves object member order and raw
// number literals, so a document can be rewritten in place and serialized
// back without disturbing sibling structure.
package jsontree

// Kind tags the variant a Node holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// String returns a human-readable kind name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Member is one object entry. Objects keep members in document order;
// duplicate keys are kept as-is and lookups return the first.
type Member struct {
	Key   string
	Value *Node
}

// Node is a single JSON value. The zero value is null. A node belongs to
// exactly one tree; trees are created fresh per parsed document and never
// shared, so in-place mutation needs no locking.
type Node struct {
	kind    Kind
	scalar  string // string value or raw number literal
	boolean bool
	members []Member
	elems   []*Node
}

// NewString returns a string-valued node.
func NewString(s string) *Node {
	return &Node{kind: KindString, scalar: s}
}

// Kind reports which variant the node holds.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// StringValue returns the value of a string node, or "" for any other kind.
func (n *Node) StringValue() string {
	if n == nil || n.kind != KindString {
		return ""
	}
	return n.scalar
}

// NumberLiteral returns the raw literal of a number node, or "" otherwise.
func (n *Node) NumberLiteral() string {
	if n == nil || n.kind != KindNumber {
		return ""
	}
	return n.scalar
}

// BoolValue returns the value of a bool node, or false otherwise.
func (n *Node) BoolValue() bool {
	if n == nil || n.kind != KindBool {
		return false
	}
	return n.boolean
}

// Len returns the member count of an object or element count of an array,
// and 0 for scalars.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindObject:
		return len(n.members)
	case KindArray:
		return len(n.elems)
	default:
		return 0
	}
}

// Field looks up an object member by key. It reports false when the node is
// not an object or the key is absent.
func (n *Node) Field(key string) (*Node, bool) {
	if n == nil || n.kind != KindObject {
		return nil, false
	}
	for _, m := range n.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// SetField overwrites the value of an existing member. It never creates new
// members; a missing key reports false.
func (n *Node) SetField(key string, v *Node) bool {
	if n == nil || n.kind != KindObject {
		return false
	}
	for i := range n.members {
		if n.members[i].Key == key {
			n.members[i].Value = v
			return true
		}
	}
	return false
}

// Element returns the array element at i, bounds-checked against the live
// length at time of call.
func (n *Node) Element(i int) (*Node, bool) {
	if n == nil || n.kind != KindArray || i < 0 || i >= len(n.elems) {
		return nil, false
	}
	return n.elems[i], true
}

// SetElement overwrites the array element at i. Out-of-range indices report
// false rather than growing the array.
func (n *Node) SetElement(i int, v *Node) bool {
	if n == nil || n.kind != KindArray || i < 0 || i >= len(n.elems) {
		return false
	}
	n.elems[i] = v
	return true
}

// Children returns the direct child nodes in document order: member values
// for objects, elements for arrays, nil for scalars. The slice reflects the
// tree at time of call, so callers see replacements made before they iterate.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindObject:
		out := make([]*Node, len(n.members))
		for i, m := range n.members {
			out[i] = m.Value
		}
		return out
	case KindArray:
		out := make([]*Node, len(n.elems))
		copy(out, n.elems)
		return out
	default:
		return nil
	}
}

// Members returns the object's members in document order, or nil for
// non-objects. The returned slice shares the node's backing storage.
func (n *Node) Members() []Member {
	if n == nil || n.kind != KindObject {
		return nil
	}
	return n.members
}
