package query

import (
	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

// Merged cursor wire format:
//
//	version(1) | { len(1) | topic cursor(len) } per topic, in request order
//
// A zero-length entry means that topic has not been read past its start yet.
const mergedCursorVersion = 0x81

// lane is one topic's slice of a merged page.
type lane struct {
	topic string
	start []byte
	envs  []envelope.StoredEnvelope
	taken int
}

func (l *lane) head() (envelope.StoredEnvelope, bool) {
	if l.taken >= len(l.envs) {
		return envelope.StoredEnvelope{}, false
	}
	return l.envs[l.taken], true
}

// runMerged reads every topic of spec on r and merges them by
// (TimestampNs, Seq) in the requested direction. Each lane reads one
// envelope past the page so leftovers tell whether a next cursor is needed.
func (e *Engine) runMerged(r pebblestore.Reader, spec envelope.QuerySpec) (envelope.QueryResult, error) {
	starts, err := decodeMergedCursor(spec.Topics, spec.StartCursor)
	if err != nil {
		return envelope.QueryResult{}, err
	}
	limit := int(e.limits.ClampLimit(spec.Limit))
	desc := spec.Direction.Descending()

	lanes := make([]*lane, len(spec.Topics))
	for i, t := range spec.Topics {
		sub := spec
		sub.Topic, sub.Topics, sub.StartCursor = t, nil, starts[i]
		span, err := e.span(sub)
		if err != nil {
			return envelope.QueryResult{}, err
		}
		envs, err := e.st.Scan(r, t, span, desc, limit+1)
		if err != nil {
			return envelope.QueryResult{}, err
		}
		lanes[i] = &lane{topic: t, start: starts[i], envs: envs}
	}

	var res envelope.QueryResult
	for len(res.Envelopes) < limit {
		var next *lane
		var best envelope.StoredEnvelope
		for _, l := range lanes {
			h, ok := l.head()
			if !ok {
				continue
			}
			c := h.Cursor().Compare(best.Cursor())
			if next == nil || (!desc && c < 0) || (desc && c > 0) {
				next, best = l, h
			}
		}
		if next == nil {
			break
		}
		res.Envelopes = append(res.Envelopes, best)
		next.taken++
	}

	more := false
	for _, l := range lanes {
		if _, ok := l.head(); ok {
			more = true
			break
		}
	}
	if more {
		res.NextCursor = e.encodeMergedCursor(lanes)
	}
	return res, nil
}

func (e *Engine) encodeMergedCursor(lanes []*lane) []byte {
	b := []byte{mergedCursorVersion}
	for _, l := range lanes {
		pos := l.start
		if l.taken > 0 {
			pos = e.st.EncodeCursor(l.topic, l.envs[l.taken-1].Cursor())
		}
		b = append(b, byte(len(pos)))
		b = append(b, pos...)
	}
	return b
}

// decodeMergedCursor splits b into per-topic cursors. The topic cursors are
// checked later, when each lane maps its cursor onto a span.
func decodeMergedCursor(topics []string, b []byte) ([][]byte, error) {
	out := make([][]byte, len(topics))
	if len(b) == 0 {
		return out, nil
	}
	if b[0] != mergedCursorVersion {
		return nil, envelope.ErrInvalidCursor
	}
	b = b[1:]
	for i := range topics {
		if len(b) == 0 {
			return nil, envelope.ErrInvalidCursor
		}
		n := int(b[0])
		if len(b) < 1+n {
			return nil, envelope.ErrInvalidCursor
		}
		if n > 0 {
			out[i] = b[1 : 1+n]
		}
		b = b[1+n:]
	}
	if len(b) != 0 {
		return nil, envelope.ErrInvalidCursor
	}
	return out, nil
}
