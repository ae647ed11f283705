package astcache

import "errors"

var (
	// ErrParseFailed marks operational parser failures: an unavailable
	// grammar, a nil tree from the engine, or a deadline expiring before
	// the parse started returning. Syntactically invalid input is not a
	// failure; the engine produces a tree with explicit error nodes.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidEdit marks an edit descriptor whose ranges are inconsistent
	// with the previous tree. It is never surfaced to callers: the executor
	// falls back to a full reparse and logs a warning instead.
	ErrInvalidEdit = errors.New("invalid edit")

	// ErrInternalInconsistency marks a defect in the materialized node
	// table, such as a child list referencing an unregistered id. The
	// request is aborted rather than returning a partially correct graph.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)
