package astcache

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Point is a zero-based row/column position in source text.
type Point struct {
	Row    uint `json:"row"`
	Column uint `json:"column"`
}

func (p Point) toSitter() tree_sitter.Point {
	return tree_sitter.Point{Row: p.Row, Column: p.Column}
}

func fromSitter(p tree_sitter.Point) Point {
	return Point{Row: p.Row, Column: p.Column}
}

// Edit describes a single textual change, in the shape the engine needs to
// shift node ranges before an incremental reparse.
type Edit struct {
	StartByte   uint  `json:"startByte"`
	OldEndByte  uint  `json:"oldEndByte"`
	NewEndByte  uint  `json:"newEndByte"`
	StartPoint  Point `json:"startPoint"`
	OldEndPoint Point `json:"oldEndPoint"`
	NewEndPoint Point `json:"newEndPoint"`
}

// validate checks an edit against the byte lengths of the previous and new
// source buffers. A failing edit triggers the full-reparse fallback.
func (e Edit) validate(oldLen, newLen int) error {
	if e.StartByte > e.OldEndByte {
		return fmt.Errorf("%w: start byte %d after old end byte %d", ErrInvalidEdit, e.StartByte, e.OldEndByte)
	}
	if e.StartByte > e.NewEndByte {
		return fmt.Errorf("%w: start byte %d after new end byte %d", ErrInvalidEdit, e.StartByte, e.NewEndByte)
	}
	if e.OldEndByte > uint(oldLen) {
		return fmt.Errorf("%w: old end byte %d beyond previous source length %d", ErrInvalidEdit, e.OldEndByte, oldLen)
	}
	if e.NewEndByte > uint(newLen) {
		return fmt.Errorf("%w: new end byte %d beyond new source length %d", ErrInvalidEdit, e.NewEndByte, newLen)
	}
	return nil
}

func (e Edit) toInputEdit() tree_sitter.InputEdit {
	return tree_sitter.InputEdit{
		StartByte:      e.StartByte,
		OldEndByte:     e.OldEndByte,
		NewEndByte:     e.NewEndByte,
		StartPosition:  e.StartPoint.toSitter(),
		OldEndPosition: e.OldEndPoint.toSitter(),
		NewEndPosition: e.NewEndPoint.toSitter(),
	}
}

// ByteRange is a byte span with its row/column endpoints. Ranges reported by
// the engine as changed during an incremental reparse are recorded on the
// ParseResult for observability.
type ByteRange struct {
	StartByte  uint  `json:"startByte"`
	EndByte    uint  `json:"endByte"`
	StartPoint Point `json:"startPoint"`
	EndPoint   Point `json:"endPoint"`
}
