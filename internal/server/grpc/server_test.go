package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	messagev1 "github.com/rzbill/courier/api/message/v1"
	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/runtime"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
}

type harness struct {
	svc  *messagesvc.Service
	conn *grpc.ClientConn
	api  messagev1.MessageApiClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default(), Logger: logger})
	require.NoError(t, err)
	svc, err := messagesvc.New(rt, messagesvc.Options{Logger: logger})
	require.NoError(t, err)
	srv := New(svc, logger)
	d := dialer(srv.grpc)

	conn, err := grpc.DialContext(context.Background(), "bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		_ = svc.Close()
		_ = rt.Close()
	})
	return &harness{svc: svc, conn: conn, api: messagev1.NewMessageApiClient(conn)}
}

func (h *harness) publish(t *testing.T, ctx context.Context, envs ...*messagev1.Envelope) {
	t.Helper()
	_, err := h.api.Publish(ctx, &messagev1.PublishRequest{Envelopes: envs})
	require.NoError(t, err)
}

func TestHealthOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := grpc_health_v1.NewHealthClient(h.conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, res.GetStatus())
}

func TestPublishAndPaginateOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "A", TimestampNs: 1, Message: []byte("m1")},
		&messagev1.Envelope{ContentTopic: "A", TimestampNs: 2, Message: []byte("m2")},
	)

	var hdr metadata.MD
	page1, err := h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"A"},
		PagingInfo:    &messagev1.PagingInfo{Limit: 1, Direction: messagev1.SortDirectionAscending},
	}, grpc.Header(&hdr))
	require.NoError(t, err)
	require.Len(t, page1.Envelopes, 1)
	assert.Equal(t, "m1", string(page1.Envelopes[0].Message))
	require.NotNil(t, page1.GetPagingInfo().GetCursor())
	assert.NotEmpty(t, hdr.Get(requestIDHeader))

	page2, err := h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"A"},
		PagingInfo:    &messagev1.PagingInfo{Limit: 1, Cursor: page1.PagingInfo.Cursor},
	})
	require.NoError(t, err)
	require.Len(t, page2.Envelopes, 1)
	assert.Equal(t, "m2", string(page2.Envelopes[0].Message))
	assert.Nil(t, page2.GetPagingInfo().GetCursor())
}

func TestErrorCodesOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := h.api.Publish(ctx, &messagev1.PublishRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.api.Query(ctx, &messagev1.QueryRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.api.Query(ctx, &messagev1.QueryRequest{ContentTopics: []string{"a", "a"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"a"},
		PagingInfo:    &messagev1.PagingInfo{Direction: messagev1.SortDirection(7)},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad := metadata.AppendToOutgoingContext(ctx, messagev1.EndCursorKey, "nope")
	_, err = h.api.Query(bad, &messagev1.QueryRequest{ContentTopics: []string{"a"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"a"},
		PagingInfo:    &messagev1.PagingInfo{Cursor: &messagev1.Cursor{Index: &messagev1.IndexCursor{Digest: []byte("junk")}}},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.api.BatchQuery(ctx, &messagev1.BatchQueryRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestBatchQueryPerRequestErrors(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 1, Message: []byte("a1")},
		&messagev1.Envelope{ContentTopic: "b", TimestampNs: 2, Message: []byte("b1")},
	)

	var trailer metadata.MD
	res, err := h.api.BatchQuery(ctx, &messagev1.BatchQueryRequest{Requests: []*messagev1.QueryRequest{
		{ContentTopics: []string{"b"}},
		{ContentTopics: []string{"a", "b"}},
		{ContentTopics: []string{"a"}, PagingInfo: &messagev1.PagingInfo{Cursor: &messagev1.Cursor{Index: &messagev1.IndexCursor{Digest: []byte("junk")}}}},
		{ContentTopics: []string{"a"}, PagingInfo: &messagev1.PagingInfo{Direction: messagev1.SortDirection(9)}},
		{ContentTopics: []string{"a"}},
	}}, grpc.Trailer(&trailer))
	require.NoError(t, err)
	require.Len(t, res.Responses, 5)
	assert.Equal(t, "b1", string(res.Responses[0].Envelopes[0].Message))
	require.Len(t, res.Responses[1].Envelopes, 2)
	assert.Equal(t, "a1", string(res.Responses[1].Envelopes[0].Message))
	assert.Equal(t, "b1", string(res.Responses[1].Envelopes[1].Message))
	assert.Empty(t, res.Responses[2].Envelopes)
	assert.Empty(t, res.Responses[3].Envelopes)
	assert.Equal(t, "a1", string(res.Responses[4].Envelopes[0].Message))

	errs := messagev1.QueryErrorsFromTrailer(trailer)
	require.Len(t, errs, 2)
	assert.Equal(t, 2, errs[0].Index)
	assert.Equal(t, codes.InvalidArgument, errs[0].Code)
	assert.NotEmpty(t, errs[0].Message)
	assert.Equal(t, 3, errs[1].Index)
	assert.Equal(t, codes.InvalidArgument, errs[1].Code)
}

func TestMergedQueryPagesOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 1, Message: []byte("a1")},
		&messagev1.Envelope{ContentTopic: "b", TimestampNs: 2, Message: []byte("b2")},
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 3, Message: []byte("a3")},
		&messagev1.Envelope{ContentTopic: "b", TimestampNs: 4, Message: []byte("b4")},
	)

	var got []string
	var cursor *messagev1.Cursor
	for pages := 0; pages < 5; pages++ {
		res, err := h.api.Query(ctx, &messagev1.QueryRequest{
			ContentTopics: []string{"a", "b"},
			PagingInfo:    &messagev1.PagingInfo{Limit: 3, Cursor: cursor},
		})
		require.NoError(t, err)
		for _, e := range res.Envelopes {
			got = append(got, string(e.Message))
		}
		cursor = res.GetPagingInfo().GetCursor()
		if cursor == nil {
			break
		}
		assert.Equal(t, res.Envelopes[len(res.Envelopes)-1].TimestampNs, cursor.GetIndex().SenderTimeNs)
	}
	assert.Equal(t, []string{"a1", "b2", "a3", "b4"}, got)

	// A merged cursor does not resume a different topic list.
	first, err := h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"a", "b"},
		PagingInfo:    &messagev1.PagingInfo{Limit: 1},
	})
	require.NoError(t, err)
	_, err = h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"b", "a"},
		PagingInfo:    &messagev1.PagingInfo{Limit: 1, Cursor: first.PagingInfo.Cursor},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEndCursorFromMetadata(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 1, Message: []byte("a1")},
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 2, Message: []byte("a2")},
		&messagev1.Envelope{ContentTopic: "a", TimestampNs: 3, Message: []byte("a3")},
	)
	page, err := h.api.Query(ctx, &messagev1.QueryRequest{
		ContentTopics: []string{"a"},
		PagingInfo:    &messagev1.PagingInfo{Limit: 2},
	})
	require.NoError(t, err)
	end := page.GetPagingInfo().GetCursor().GetIndex().GetDigest()
	require.NotEmpty(t, end)

	res, err := h.api.Query(messagev1.WithEndCursor(ctx, 0, end), &messagev1.QueryRequest{ContentTopics: []string{"a"}})
	require.NoError(t, err)
	require.Len(t, res.Envelopes, 1)
	assert.Equal(t, "a1", string(res.Envelopes[0].Message))

	bctx := messagev1.WithEndCursor(ctx, 1, end)
	batch, err := h.api.BatchQuery(bctx, &messagev1.BatchQueryRequest{Requests: []*messagev1.QueryRequest{
		{ContentTopics: []string{"a"}},
		{ContentTopics: []string{"a"}},
	}})
	require.NoError(t, err)
	assert.Len(t, batch.Responses[0].Envelopes, 3)
	assert.Len(t, batch.Responses[1].Envelopes, 1)
}

func TestSubscribeFilterFromMetadata(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.api.Subscribe(messagev1.WithFilter(ctx, "size > 2"), &messagev1.SubscribeRequest{ContentTopics: []string{"f"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := h.svc.Stats(ctx)
		return err == nil && st.Subscriptions.Topics["f"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "f", TimestampNs: 1, Message: []byte("ab")},
		&messagev1.Envelope{ContentTopic: "f", TimestampNs: 2, Message: []byte("abcd")},
	)
	got, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got.Message))

	bad, err := h.api.Subscribe(messagev1.WithFilter(ctx, "size >"), &messagev1.SubscribeRequest{ContentTopics: []string{"f"}})
	require.NoError(t, err)
	_, err = bad.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubscribeOverGRPC(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.api.Subscribe(ctx, &messagev1.SubscribeRequest{ContentTopics: []string{"B"}})
	require.NoError(t, err)
	all, err := h.api.SubscribeAll(ctx, &messagev1.SubscribeAllRequest{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := h.svc.Stats(ctx)
		return err == nil && st.Subscriptions.Topics["B"] == 1 && st.Subscriptions.Firehose == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.publish(t, ctx,
		&messagev1.Envelope{ContentTopic: "A", TimestampNs: 1, Message: []byte("x")},
		&messagev1.Envelope{ContentTopic: "B", TimestampNs: 2, Message: []byte("y")},
	)

	got, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "B", got.ContentTopic)
	assert.Equal(t, "y", string(got.Message))

	first, err := all.Recv()
	require.NoError(t, err)
	second, err := all.Recv()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, []string{string(first.Message), string(second.Message)})
}

func TestSubscribeRejectsEmptyTopics(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := h.api.Subscribe(ctx, &messagev1.SubscribeRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
