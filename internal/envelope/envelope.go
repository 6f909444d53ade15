package envelope

// Envelope is an opaque message tagged with a topic and a sender timestamp.
type Envelope struct {
	Topic       string
	TimestampNs uint64
	Message     []byte
}

// StoredEnvelope is an Envelope plus its store-assigned sequence id.
// Seq is strictly increasing across the whole store and never exposed to
// clients except inside opaque cursors.
type StoredEnvelope struct {
	Envelope
	Seq uint64
}

// Cursor returns the position of this envelope in its topic.
func (s StoredEnvelope) Cursor() Cursor {
	return Cursor{TimestampNs: s.TimestampNs, Seq: s.Seq}
}

// Cursor is a position in a topic. Topic order is (TimestampNs, Seq).
type Cursor struct {
	TimestampNs uint64
	Seq         uint64
}

// Compare orders cursors by timestamp then sequence.
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.TimestampNs < o.TimestampNs:
		return -1
	case c.TimestampNs > o.TimestampNs:
		return 1
	case c.Seq < o.Seq:
		return -1
	case c.Seq > o.Seq:
		return 1
	}
	return 0
}

// Direction selects traversal order.
type Direction int

const (
	// DirectionUnspecified is treated as ascending.
	DirectionUnspecified Direction = iota
	DirectionAscending
	DirectionDescending
)

// Descending reports whether d walks newest first.
func (d Direction) Descending() bool { return d == DirectionDescending }

func (d Direction) String() string {
	if d.Descending() {
		return "descending"
	}
	return "ascending"
}

// QuerySpec describes one topic-scoped history read.
//
// StartCursor/EndCursor are exclusive bounds, StartTimeNs/EndTimeNs inclusive
// ones; zero values mean unbounded. In descending order StartCursor is the
// newest position already seen and the walk moves toward older envelopes.
//
// Topics, when set, replaces Topic. Several topics are read on one snapshot
// and merged in (TimestampNs, Seq) order; the page's NextCursor then resumes
// every topic at once and only works with the same topic list.
type QuerySpec struct {
	Topic       string
	Topics      []string
	StartCursor []byte
	EndCursor   []byte
	StartTimeNs uint64
	EndTimeNs   uint64
	Direction   Direction
	Limit       uint32
}

// TopicList returns the topics s reads, in request order.
func (s QuerySpec) TopicList() []string {
	if len(s.Topics) > 0 {
		return s.Topics
	}
	return []string{s.Topic}
}

// Merged reports whether s reads more than one topic.
func (s QuerySpec) Merged() bool { return len(s.Topics) > 1 }

// QueryResult is one page of a query.
type QueryResult struct {
	Envelopes  []StoredEnvelope
	NextCursor []byte
}

// BatchResult is the outcome of a single spec inside a BatchQuery.
// Exactly one of Result or Err is meaningful.
type BatchResult struct {
	Result QueryResult
	Err    error
}
