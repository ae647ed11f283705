package astcache

import (
	"fmt"
	"log/slog"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeRecord is the externally consumable form of a single tree node,
// indexed by a stable integer id instead of native pointers.
type NodeRecord struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	StartByte  uint   `json:"startByte"`
	EndByte    uint   `json:"endByte"`
	StartPoint Point  `json:"startPoint"`
	EndPoint   Point  `json:"endPoint"`
	Named      bool   `json:"named"`
	FieldName  string `json:"fieldName,omitempty"`
	ParentID   int    `json:"parentId"` // -1 for the root
	Children   []int  `json:"children,omitempty"`
	Text       string `json:"text,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// MaterializedAST is a depth-bounded, id-indexed node graph detached from
// the native tree. It is cheap to regenerate, so only ParseResults are
// cached, never materializations.
type MaterializedAST struct {
	RootID         int                 `json:"rootId"`
	Nodes          map[int]*NodeRecord `json:"nodes"`
	MaxDepth       int                 `json:"maxDepth"`
	TruncatedCount int                 `json:"truncatedCount"`
}

// MaterializeOptions bounds a materialization. MaxDepth counts edges from
// the root; nodes at MaxDepth with native children are marked truncated.
// Text is attached to leaves always, and to non-truncated inner nodes when
// IncludeText is set.
type MaterializeOptions struct {
	MaxDepth    int
	IncludeText bool
}

type frame struct {
	node     *tree_sitter.Node
	field    string
	depth    int
	parentID int
}

// Materialize converts a parse result into a MaterializedAST using an
// explicit work stack. No recursion is used, so arbitrarily deep trees
// cannot overflow the call stack. Every node's record is registered in the
// table before any of its children are visited; a parent id missing at
// attach time is a fatal internal-invariant violation.
func Materialize(res *ParseResult, opts MaterializeOptions, logger *slog.Logger) (*MaterializedAST, error) {
	if logger == nil {
		logger = slog.Default()
	}

	out := &MaterializedAST{Nodes: make(map[int]*NodeRecord)}
	stack := []frame{{node: res.Root(), parentID: -1}}
	nextID := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec := &NodeRecord{
			ID:         nextID,
			Type:       f.node.Kind(),
			StartByte:  f.node.StartByte(),
			EndByte:    f.node.EndByte(),
			StartPoint: fromSitter(f.node.StartPosition()),
			EndPoint:   fromSitter(f.node.EndPosition()),
			Named:      f.node.IsNamed(),
			FieldName:  f.field,
			ParentID:   f.parentID,
		}
		nextID++

		// Register before descending. Children attach themselves to the
		// parent record when popped, so the parent must already be in the
		// table.
		out.Nodes[rec.ID] = rec
		if f.parentID >= 0 {
			parent, ok := out.Nodes[f.parentID]
			if !ok {
				logger.Error("node table references unregistered parent",
					"nodeId", rec.ID, "parentId", f.parentID, "type", rec.Type)
				return nil, fmt.Errorf("%w: parent %d of node %d not in table", ErrInternalInconsistency, f.parentID, rec.ID)
			}
			parent.Children = append(parent.Children, rec.ID)
		}
		if f.depth > out.MaxDepth {
			out.MaxDepth = f.depth
		}

		count := f.node.ChildCount()
		if f.depth >= opts.MaxDepth {
			if count > 0 {
				rec.Truncated = true
				out.TruncatedCount++
			}
		} else {
			// Push in reverse so stack order yields original
			// left-to-right child order.
			for i := count; i > 0; i-- {
				child := f.node.Child(i - 1)
				stack = append(stack, frame{
					node:     child,
					field:    f.node.FieldNameForChild(uint32(i - 1)),
					depth:    f.depth + 1,
					parentID: rec.ID,
				})
			}
		}

		if count == 0 || (opts.IncludeText && !rec.Truncated) {
			rec.Text = f.node.Utf8Text(res.Source)
		}
	}

	return out, nil
}
