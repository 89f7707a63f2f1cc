package jsontree

import (
	"sort"
	"strconv"
)

// Paths enumerates every concrete path reachable in the tree: object keys
// fully qualified with dots, array elements as "[i]". The result is sorted
// and deduplicated. Scalar roots and empty containers yield nothing. The
// listing helps operators discover valid paths when authoring rules.
func Paths(root *Node) []string {
	if root == nil {
		return nil
	}
	seen := make(map[string]struct{})
	collectPaths(root, "", seen)

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PathsOf parses text and enumerates its paths. Any parse failure yields an
// empty sequence rather than an error.
func PathsOf(text string) []string {
	root, err := ParseString(text)
	if err != nil {
		return nil
	}
	return Paths(root)
}

func collectPaths(n *Node, prefix string, seen map[string]struct{}) {
	switch n.Kind() {
	case KindObject:
		for _, m := range n.members {
			p := m.Key
			if prefix != "" {
				p = prefix + "." + m.Key
			}
			seen[p] = struct{}{}
			collectPaths(m.Value, p, seen)
		}
	case KindArray:
		for i, el := range n.elems {
			p := prefix + "[" + strconv.Itoa(i) + "]"
			seen[p] = struct{}{}
			collectPaths(el, p, seen)
		}
	}
}
