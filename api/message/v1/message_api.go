// Package messagev1 holds the MessageApi types (package
// xmtp.message_api.v1), a gRPC codec for them and the service descriptor.
//
// The wire schema is message_api.proto, compiled at init into protobuf
// descriptors; the Go types below convert to and from dynamic messages of
// that schema and all encoding goes through the protobuf runtime. Courier
// extensions (subscription filters, end cursors, per-request BatchQuery
// errors) are carried in gRPC metadata, see metadata.go.
package messagev1

import (
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Message is implemented by every MessageApi type.
type Message interface {
	messageName() protoreflect.Name
	fill(f fields)
	load(f fields)
}

// SortDirection orders query results.
type SortDirection int32

const (
	SortDirectionUnspecified SortDirection = 0
	SortDirectionAscending   SortDirection = 1
	SortDirectionDescending  SortDirection = 2
)

func (d SortDirection) String() string {
	if v := File.Enums().ByName("SortDirection").Values().ByNumber(protoreflect.EnumNumber(d)); v != nil {
		return string(v.Name())
	}
	return "SORT_DIRECTION_UNSPECIFIED"
}

// Envelope is a published message.
type Envelope struct {
	ContentTopic string
	TimestampNs  uint64
	Message      []byte
}

func (m *Envelope) GetContentTopic() string {
	if m == nil {
		return ""
	}
	return m.ContentTopic
}

func (m *Envelope) GetTimestampNs() uint64 {
	if m == nil {
		return 0
	}
	return m.TimestampNs
}

func (m *Envelope) GetMessage() []byte {
	if m == nil {
		return nil
	}
	return m.Message
}

func (*Envelope) messageName() protoreflect.Name { return "Envelope" }

func (m *Envelope) fill(f fields) {
	f.setString("content_topic", m.ContentTopic)
	f.setUint("timestamp_ns", m.TimestampNs)
	f.setBytes("message", m.Message)
}

func (m *Envelope) load(f fields) {
	m.ContentTopic = f.getString("content_topic")
	m.TimestampNs = f.getUint("timestamp_ns")
	m.Message = f.getBytes("message")
}

// IndexCursor carries the opaque resume position in Digest.
type IndexCursor struct {
	Digest       []byte
	SenderTimeNs uint64
}

func (m *IndexCursor) GetDigest() []byte {
	if m == nil {
		return nil
	}
	return m.Digest
}

func (*IndexCursor) messageName() protoreflect.Name { return "IndexCursor" }

func (m *IndexCursor) fill(f fields) {
	f.setBytes("digest", m.Digest)
	f.setUint("sender_time_ns", m.SenderTimeNs)
}

func (m *IndexCursor) load(f fields) {
	m.Digest = f.getBytes("digest")
	m.SenderTimeNs = f.getUint("sender_time_ns")
}

// Cursor wraps the index cursor (the only cursor kind Courier issues).
type Cursor struct {
	Index *IndexCursor
}

func (m *Cursor) GetIndex() *IndexCursor {
	if m == nil {
		return nil
	}
	return m.Index
}

func (*Cursor) messageName() protoreflect.Name { return "Cursor" }

func (m *Cursor) fill(f fields) {
	if m.Index != nil {
		f.setMessage("index", m.Index)
	}
}

func (m *Cursor) load(f fields) {
	if f.has("index") {
		m.Index = &IndexCursor{}
		f.loadMessage("index", m.Index)
	}
}

// PagingInfo carries the page size, resume cursor and direction.
type PagingInfo struct {
	Limit     uint32
	Cursor    *Cursor
	Direction SortDirection
}

func (m *PagingInfo) GetLimit() uint32 {
	if m == nil {
		return 0
	}
	return m.Limit
}

func (m *PagingInfo) GetCursor() *Cursor {
	if m == nil {
		return nil
	}
	return m.Cursor
}

func (m *PagingInfo) GetDirection() SortDirection {
	if m == nil {
		return SortDirectionUnspecified
	}
	return m.Direction
}

func (*PagingInfo) messageName() protoreflect.Name { return "PagingInfo" }

func (m *PagingInfo) fill(f fields) {
	f.setUint("limit", uint64(m.Limit))
	if m.Cursor != nil {
		f.setMessage("cursor", m.Cursor)
	}
	f.setEnum("direction", int32(m.Direction))
}

func (m *PagingInfo) load(f fields) {
	m.Limit = uint32(f.getUint("limit"))
	if f.has("cursor") {
		m.Cursor = &Cursor{}
		f.loadMessage("cursor", m.Cursor)
	}
	m.Direction = SortDirection(f.getEnum("direction"))
}

// QueryRequest reads one or more content topics. Several topics are merged
// into one page ordered by timestamp.
type QueryRequest struct {
	ContentTopics []string
	StartTimeNs   uint64
	EndTimeNs     uint64
	PagingInfo    *PagingInfo
}

func (m *QueryRequest) GetContentTopics() []string {
	if m == nil {
		return nil
	}
	return m.ContentTopics
}

func (m *QueryRequest) GetStartTimeNs() uint64 {
	if m == nil {
		return 0
	}
	return m.StartTimeNs
}

func (m *QueryRequest) GetEndTimeNs() uint64 {
	if m == nil {
		return 0
	}
	return m.EndTimeNs
}

func (m *QueryRequest) GetPagingInfo() *PagingInfo {
	if m == nil {
		return nil
	}
	return m.PagingInfo
}

func (*QueryRequest) messageName() protoreflect.Name { return "QueryRequest" }

func (m *QueryRequest) fill(f fields) {
	for _, t := range m.ContentTopics {
		f.appendString("content_topics", t)
	}
	f.setUint("start_time_ns", m.StartTimeNs)
	f.setUint("end_time_ns", m.EndTimeNs)
	if m.PagingInfo != nil {
		f.setMessage("paging_info", m.PagingInfo)
	}
}

func (m *QueryRequest) load(f fields) {
	m.ContentTopics = f.getStrings("content_topics")
	m.StartTimeNs = f.getUint("start_time_ns")
	m.EndTimeNs = f.getUint("end_time_ns")
	if f.has("paging_info") {
		m.PagingInfo = &PagingInfo{}
		f.loadMessage("paging_info", m.PagingInfo)
	}
}

// QueryResponse is one page.
type QueryResponse struct {
	Envelopes  []*Envelope
	PagingInfo *PagingInfo
}

func (m *QueryResponse) GetEnvelopes() []*Envelope {
	if m == nil {
		return nil
	}
	return m.Envelopes
}

func (m *QueryResponse) GetPagingInfo() *PagingInfo {
	if m == nil {
		return nil
	}
	return m.PagingInfo
}

func (*QueryResponse) messageName() protoreflect.Name { return "QueryResponse" }

func (m *QueryResponse) fill(f fields) {
	for _, e := range m.Envelopes {
		f.appendMessage("envelopes", e)
	}
	if m.PagingInfo != nil {
		f.setMessage("paging_info", m.PagingInfo)
	}
}

func (m *QueryResponse) load(f fields) {
	f.eachMessage("envelopes", func(e fields) {
		env := &Envelope{}
		env.load(e)
		m.Envelopes = append(m.Envelopes, env)
	})
	if f.has("paging_info") {
		m.PagingInfo = &PagingInfo{}
		f.loadMessage("paging_info", m.PagingInfo)
	}
}

type BatchQueryRequest struct {
	Requests []*QueryRequest
}

func (m *BatchQueryRequest) GetRequests() []*QueryRequest {
	if m == nil {
		return nil
	}
	return m.Requests
}

func (*BatchQueryRequest) messageName() protoreflect.Name { return "BatchQueryRequest" }

func (m *BatchQueryRequest) fill(f fields) {
	for _, r := range m.Requests {
		f.appendMessage("requests", r)
	}
}

func (m *BatchQueryRequest) load(f fields) {
	f.eachMessage("requests", func(e fields) {
		r := &QueryRequest{}
		r.load(e)
		m.Requests = append(m.Requests, r)
	})
}

// BatchQueryResponse holds one response per request, in request order. A
// failed request leaves an empty response; its error is in the
// x-courier-query-error-bin trailer.
type BatchQueryResponse struct {
	Responses []*QueryResponse
}

func (m *BatchQueryResponse) GetResponses() []*QueryResponse {
	if m == nil {
		return nil
	}
	return m.Responses
}

func (*BatchQueryResponse) messageName() protoreflect.Name { return "BatchQueryResponse" }

func (m *BatchQueryResponse) fill(f fields) {
	for _, r := range m.Responses {
		f.appendMessage("responses", r)
	}
}

func (m *BatchQueryResponse) load(f fields) {
	f.eachMessage("responses", func(e fields) {
		r := &QueryResponse{}
		r.load(e)
		m.Responses = append(m.Responses, r)
	})
}

type PublishRequest struct {
	Envelopes []*Envelope
}

func (m *PublishRequest) GetEnvelopes() []*Envelope {
	if m == nil {
		return nil
	}
	return m.Envelopes
}

func (*PublishRequest) messageName() protoreflect.Name { return "PublishRequest" }

func (m *PublishRequest) fill(f fields) {
	for _, e := range m.Envelopes {
		f.appendMessage("envelopes", e)
	}
}

func (m *PublishRequest) load(f fields) {
	f.eachMessage("envelopes", func(e fields) {
		env := &Envelope{}
		env.load(e)
		m.Envelopes = append(m.Envelopes, env)
	})
}

type PublishResponse struct{}

func (*PublishResponse) messageName() protoreflect.Name { return "PublishResponse" }
func (*PublishResponse) fill(fields)                    {}
func (*PublishResponse) load(fields)                    {}

// SubscribeRequest names the topics to stream. A CEL filter may be sent in
// the x-courier-filter-bin metadata entry.
type SubscribeRequest struct {
	ContentTopics []string
}

func (m *SubscribeRequest) GetContentTopics() []string {
	if m == nil {
		return nil
	}
	return m.ContentTopics
}

func (*SubscribeRequest) messageName() protoreflect.Name { return "SubscribeRequest" }

func (m *SubscribeRequest) fill(f fields) {
	for _, t := range m.ContentTopics {
		f.appendString("content_topics", t)
	}
}

func (m *SubscribeRequest) load(f fields) {
	m.ContentTopics = f.getStrings("content_topics")
}

type SubscribeAllRequest struct{}

func (*SubscribeAllRequest) messageName() protoreflect.Name { return "SubscribeAllRequest" }
func (*SubscribeAllRequest) fill(fields)                    {}
func (*SubscribeAllRequest) load(fields)                    {}
