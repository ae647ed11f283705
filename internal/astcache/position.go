package astcache

import (
	"log/slog"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// FindNodeAt returns the deepest node containing the given zero-based
// row/column, walking the native tree directly instead of materializing it.
// Zero-width nodes are never selected unless the root itself is empty
// (degenerate empty source). The returned record stands alone: its ID is 0,
// its ParentID is -1, and it carries no children.
//
// Returns nil when the point lies outside the root's range.
func FindNodeAt(res *ParseResult, row, column uint, logger *slog.Logger) *NodeRecord {
	if logger == nil {
		logger = slog.Default()
	}
	point := tree_sitter.Point{Row: row, Column: column}

	root := res.Root()
	if zeroWidth(root) {
		if pointEq(root.StartPosition(), point) {
			return detachedRecord(root, res.Source)
		}
		return nil
	}
	if !containsPoint(root, point) {
		return nil
	}

	current := root
	for {
		var chosen *tree_sitter.Node
		matches := 0
		count := current.ChildCount()
		for i := uint(0); i < count; i++ {
			child := current.Child(i)
			if zeroWidth(child) || !containsPoint(child, point) {
				continue
			}
			matches++
			if chosen == nil {
				chosen = child
			}
		}
		if matches > 1 {
			// Not expected from a well-formed grammar; the first child in
			// traversal order wins.
			logger.Warn("multiple children contain point",
				"row", row, "column", column, "type", current.Kind(), "matches", matches)
		}
		if chosen == nil {
			return detachedRecord(current, res.Source)
		}
		current = chosen
	}
}

// containsPoint reports whether a non-zero-width node's half-open range
// [start, end) contains the point.
func containsPoint(n *tree_sitter.Node, p tree_sitter.Point) bool {
	return !pointLess(p, n.StartPosition()) && pointLess(p, n.EndPosition())
}

func zeroWidth(n *tree_sitter.Node) bool {
	return n.StartByte() == n.EndByte()
}

func pointLess(a, b tree_sitter.Point) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

func pointEq(a, b tree_sitter.Point) bool {
	return a.Row == b.Row && a.Column == b.Column
}

// detachedRecord snapshots a native node into a standalone NodeRecord. Leaf
// nodes carry their literal text.
func detachedRecord(n *tree_sitter.Node, source []byte) *NodeRecord {
	rec := &NodeRecord{
		Type:       n.Kind(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: fromSitter(n.StartPosition()),
		EndPoint:   fromSitter(n.EndPosition()),
		Named:      n.IsNamed(),
		ParentID:   -1,
	}
	if n.ChildCount() == 0 {
		rec.Text = n.Utf8Text(source)
	}
	return rec
}
