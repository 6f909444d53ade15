package transports

import "context"

// Envelope is one published message as seen by the CLI.
type Envelope struct {
	Topic       string
	TimestampNs uint64
	Message     []byte
}

// QueryRequest describes a single-topic page read.
type QueryRequest struct {
	Topic       string
	StartTimeNs uint64
	EndTimeNs   uint64
	Cursor      *Cursor
	Limit       uint32
	Descending  bool
}

// Cursor is the resume position returned by Query.
type Cursor struct {
	Digest       []byte
	SenderTimeNs uint64
}

// SubscribeRequest describes a live subscription. All ignores Topics and
// subscribes to every topic.
type SubscribeRequest struct {
	Topics []string
	All    bool
	Filter string
	Limit  int
}

// MessagesTransport abstracts the transport used by the CLI.
type MessagesTransport interface {
	Publish(ctx context.Context, envs []Envelope) error
	Query(ctx context.Context, req QueryRequest) (items []Envelope, next *Cursor, err error)
	Subscribe(ctx context.Context, req SubscribeRequest, onEnvelope func(Envelope) error) error
}
