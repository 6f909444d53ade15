package store

import "github.com/rzbill/courier/internal/envelope"

// ArchiverHook is notified after retention deletes a contiguous head of a
// topic. upTo is the newest position removed.
type ArchiverHook interface {
	EmitTrimRange(topic string, deleted int, upTo envelope.Cursor)
}

type noopArchiver struct{}

func (noopArchiver) EmitTrimRange(string, int, envelope.Cursor) {}
