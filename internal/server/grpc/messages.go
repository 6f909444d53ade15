package grpcserver

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"

	messagev1 "github.com/rzbill/courier/api/message/v1"
	"github.com/rzbill/courier/internal/envelope"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
)

type messageAPI struct {
	messagev1.UnimplementedMessageApiServer
	svc *messagesvc.Service
}

func (m *messageAPI) Publish(ctx context.Context, req *messagev1.PublishRequest) (*messagev1.PublishResponse, error) {
	envs := make([]envelope.Envelope, len(req.GetEnvelopes()))
	for i, e := range req.GetEnvelopes() {
		envs[i] = envelope.Envelope{Topic: e.GetContentTopic(), TimestampNs: e.GetTimestampNs(), Message: e.GetMessage()}
	}
	if _, err := m.svc.Publish(ctx, envs); err != nil {
		return nil, toStatus(err)
	}
	return &messagev1.PublishResponse{}, nil
}

type grpcSink struct {
	stream messagev1.MessageApi_SubscribeServer
}

func (g grpcSink) Send(e envelope.StoredEnvelope) error { return g.stream.Send(toWire(e)) }
func (g grpcSink) Context() context.Context             { return g.stream.Context() }
func (g grpcSink) Flush() error                         { return nil }

func (m *messageAPI) Subscribe(req *messagev1.SubscribeRequest, stream messagev1.MessageApi_SubscribeServer) error {
	opts := messagesvc.SubscribeOptions{Filter: messagev1.FilterFromContext(stream.Context())}
	err := m.svc.StreamSubscribe(stream.Context(), req.GetContentTopics(), false, opts, grpcSink{stream: stream})
	return toStatus(err)
}

func (m *messageAPI) SubscribeAll(req *messagev1.SubscribeAllRequest, stream messagev1.MessageApi_SubscribeAllServer) error {
	opts := messagesvc.SubscribeOptions{Filter: messagev1.FilterFromContext(stream.Context())}
	err := m.svc.StreamSubscribe(stream.Context(), nil, true, opts, grpcSink{stream: stream})
	return toStatus(err)
}

func (m *messageAPI) Query(ctx context.Context, req *messagev1.QueryRequest) (*messagev1.QueryResponse, error) {
	ends, err := messagev1.EndCursorsFromContext(ctx)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", envelope.ErrInvalidArgument, err))
	}
	spec, err := toSpec(req, ends[0])
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := m.svc.Query(ctx, spec)
	if err != nil {
		return nil, toStatus(err)
	}
	return toResponse(req, res), nil
}

// BatchQuery answers every request in order. A request that fails on its
// own gets an empty response and an entry in the query-error trailer.
func (m *messageAPI) BatchQuery(ctx context.Context, req *messagev1.BatchQueryRequest) (*messagev1.BatchQueryResponse, error) {
	reqs := req.GetRequests()
	if err := m.svc.Limits().ValidateBatchSize(len(reqs)); err != nil {
		return nil, toStatus(err)
	}
	ends, err := messagev1.EndCursorsFromContext(ctx)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: %w", envelope.ErrInvalidArgument, err))
	}

	out := &messagev1.BatchQueryResponse{Responses: make([]*messagev1.QueryResponse, len(reqs))}
	var failed []messagev1.QueryError
	fail := func(i int, err error) {
		out.Responses[i] = &messagev1.QueryResponse{}
		failed = append(failed, messagev1.QueryError{Index: i, Code: codeOf(err), Message: err.Error()})
	}

	// Requests that fail conversion never reach the engine.
	valid := make([]envelope.QuerySpec, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, r := range reqs {
		spec, err := toSpec(r, ends[i])
		if err != nil {
			fail(i, err)
			continue
		}
		valid = append(valid, spec)
		index = append(index, i)
	}
	if len(valid) > 0 {
		results, err := m.svc.BatchQuery(ctx, valid)
		if err != nil {
			return nil, toStatus(err)
		}
		for j, r := range results {
			i := index[j]
			if r.Err != nil {
				fail(i, r.Err)
				continue
			}
			out.Responses[i] = toResponse(reqs[i], r.Result)
		}
	}
	if len(failed) > 0 {
		sort.Slice(failed, func(a, b int) bool { return failed[a].Index < failed[b].Index })
		if err := grpc.SetTrailer(ctx, messagev1.QueryErrorTrailer(failed)); err != nil {
			return nil, toStatus(fmt.Errorf("%w: %w", envelope.ErrUnavailable, err))
		}
	}
	return out, nil
}

func toWire(e envelope.StoredEnvelope) *messagev1.Envelope {
	return &messagev1.Envelope{ContentTopic: e.Topic, TimestampNs: e.TimestampNs, Message: e.Message}
}

// toSpec maps a request onto a QuerySpec. Several content topics become one
// merged query whose cursor only resumes the same topic list.
func toSpec(req *messagev1.QueryRequest, endCursor []byte) (envelope.QuerySpec, error) {
	topics := req.GetContentTopics()
	if len(topics) == 0 {
		return envelope.QuerySpec{}, fmt.Errorf("%w: query needs a content topic", envelope.ErrInvalidArgument)
	}
	pi := req.GetPagingInfo()
	spec := envelope.QuerySpec{
		StartTimeNs: req.GetStartTimeNs(),
		EndTimeNs:   req.GetEndTimeNs(),
		Limit:       pi.GetLimit(),
		StartCursor: pi.GetCursor().GetIndex().GetDigest(),
		EndCursor:   endCursor,
	}
	if len(topics) == 1 {
		spec.Topic = topics[0]
	} else {
		spec.Topics = topics
	}
	switch pi.GetDirection() {
	case messagev1.SortDirectionUnspecified:
		spec.Direction = envelope.DirectionUnspecified
	case messagev1.SortDirectionAscending:
		spec.Direction = envelope.DirectionAscending
	case messagev1.SortDirectionDescending:
		spec.Direction = envelope.DirectionDescending
	default:
		return envelope.QuerySpec{}, fmt.Errorf("%w: unknown sort direction %d", envelope.ErrInvalidArgument, pi.GetDirection())
	}
	return spec, nil
}

func toResponse(req *messagev1.QueryRequest, res envelope.QueryResult) *messagev1.QueryResponse {
	out := &messagev1.QueryResponse{Envelopes: make([]*messagev1.Envelope, len(res.Envelopes))}
	for i, e := range res.Envelopes {
		out.Envelopes[i] = toWire(e)
	}
	pi := req.GetPagingInfo()
	out.PagingInfo = &messagev1.PagingInfo{Limit: pi.GetLimit(), Direction: pi.GetDirection()}
	if res.NextCursor != nil {
		idx := &messagev1.IndexCursor{Digest: res.NextCursor}
		if n := len(res.Envelopes); n > 0 {
			idx.SenderTimeNs = res.Envelopes[n-1].TimestampNs
		}
		out.PagingInfo.Cursor = &messagev1.Cursor{Index: idx}
	}
	return out
}
