package rewrite

import (
	"github.com/mqtap/mqtap/internal/jsonpath"
	"github.com/mqtap/mqtap/internal/jsontree"
)

// ReplaceAll walks the whole tree under root and, at every node, attempts to
// resolve path anchored at that node. Each successful resolution overwrites
// the addressed value in place with a string node holding placeholder, and
// the return value counts the replacements performed.
//
// A relative path such as "person.employedAt" therefore fires once per
// matching ancestor, covering every element of an array of similar records.
// Resolution failures (missing key, index out of range, scalar in the way)
// are silent non-matches and never stop the search.
func ReplaceAll(root *jsontree.Node, path jsonpath.Path, placeholder string) int {
	if root == nil || len(path) == 0 {
		return 0
	}

	count := 0
	if tryReplaceAt(root, path, placeholder) {
		count++
	}
	for _, child := range root.Children() {
		count += searchDescendants(child, path, placeholder)
	}
	return count
}

// searchDescendants anchors the path at node and then repeats the attempt for
// every descendant. Children are gathered after the local attempt, so a
// subtree that was just replaced by a string is not searched again.
func searchDescendants(node *jsontree.Node, path jsonpath.Path, placeholder string) int {
	count := 0
	if tryReplaceAt(node, path, placeholder) {
		count++
	}
	for _, child := range node.Children() {
		count += searchDescendants(child, path, placeholder)
	}
	return count
}

// tryReplaceAt resolves path starting exactly at node. All but the last
// segment navigate downward; the last segment is resolved against its
// container so the addressed slot can be overwritten.
func tryReplaceAt(node *jsontree.Node, path jsonpath.Path, placeholder string) bool {
	if len(path) == 0 {
		return false
	}
	if len(path) == 1 {
		return replaceSlot(node, path[0], placeholder)
	}

	child, ok := resolveChild(node, path[0])
	if !ok {
		return false
	}
	return tryReplaceAt(child, path[1:], placeholder)
}

// resolveChild steps one segment down from node, reporting false on any
// mismatch between the segment and the node's shape.
func resolveChild(node *jsontree.Node, seg jsonpath.Segment) (*jsontree.Node, bool) {
	switch seg.Kind {
	case jsonpath.SegmentKey:
		return node.Field(seg.Key)
	case jsonpath.SegmentIndex:
		return node.Element(seg.Index)
	}
	return nil, false
}

// replaceSlot overwrites the slot addressed by seg inside container with a
// string node, regardless of the value's previous type.
func replaceSlot(container *jsontree.Node, seg jsonpath.Segment, placeholder string) bool {
	switch seg.Kind {
	case jsonpath.SegmentKey:
		return container.SetField(seg.Key, jsontree.NewString(placeholder))
	case jsonpath.SegmentIndex:
		return container.SetElement(seg.Index, jsontree.NewString(placeholder))
	}
	return false
}
