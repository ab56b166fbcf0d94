// Package eventbus implements spec.md §4.6 (C6): an in-process typed
// publish/subscribe surface delivering DeltaEvents to consumers, with
// bounded per-subscriber queues and subscriber-scoped overflow
// reporting. Grounded on the teacher's internal/jetstream: an embedded,
// DontListen NATS server is the in-process carrier, generalized from
// JetStream-backed chunk replay to plain NATS pub/sub, since the core
// persists nothing (see DESIGN.md).
package eventbus

import "github.com/deltastream/core/internal/pathutil"

// Kind enumerates the DeltaEvent variants of spec.md §3.
type Kind string

const (
	PathAdded    Kind = "added"
	PathRemoved  Kind = "removed"
	ValueChanged Kind = "changed"
	Progress     Kind = "progress"
	Error        Kind = "error"
	Complete     Kind = "complete"
)

// ErrInfo is the wire-level error payload of spec.md §6.
type ErrInfo struct {
	Code    string
	Message string
}

// DeltaEvent is the unit of output described in spec.md §3 and §6.
type DeltaEvent struct {
	SessionID    string
	Seq          uint64
	TimestampMs  int64
	Kind         Kind
	Path         pathutil.Path
	RenderedPath string
	Value        string
	OldValue     string
	Err          *ErrInfo
}
