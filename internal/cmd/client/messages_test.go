package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"

	messagev1 "github.com/rzbill/courier/api/message/v1"
	transports "github.com/rzbill/courier/internal/cmd/client/transports"
)

type messagesStub struct {
	messagev1.UnimplementedMessageApiServer

	mu        sync.Mutex
	published []*messagev1.Envelope
	queries   []*messagev1.QueryRequest
	filter    string
	toSend    int
}

func (s *messagesStub) Publish(_ context.Context, req *messagev1.PublishRequest) (*messagev1.PublishResponse, error) {
	s.mu.Lock()
	s.published = append(s.published, req.GetEnvelopes()...)
	s.mu.Unlock()
	return &messagev1.PublishResponse{}, nil
}

// Query serves two pages: the first carries a cursor, the second does not.
func (s *messagesStub) Query(_ context.Context, req *messagev1.QueryRequest) (*messagev1.QueryResponse, error) {
	s.mu.Lock()
	s.queries = append(s.queries, req)
	s.mu.Unlock()
	topic := req.GetContentTopics()[0]
	if req.GetPagingInfo().GetCursor() == nil {
		return &messagev1.QueryResponse{
			Envelopes: []*messagev1.Envelope{{ContentTopic: topic, TimestampNs: 1, Message: []byte(`{"n":1}`)}},
			PagingInfo: &messagev1.PagingInfo{
				Cursor: &messagev1.Cursor{Index: &messagev1.IndexCursor{Digest: []byte("d1"), SenderTimeNs: 1}},
			},
		}, nil
	}
	return &messagev1.QueryResponse{
		Envelopes: []*messagev1.Envelope{{ContentTopic: topic, TimestampNs: 2, Message: []byte{0xff, 0xfe}}},
	}, nil
}

func (s *messagesStub) Subscribe(req *messagev1.SubscribeRequest, stream messagev1.MessageApi_SubscribeServer) error {
	s.mu.Lock()
	s.filter = messagev1.FilterFromContext(stream.Context())
	s.mu.Unlock()
	for i := 0; i < s.toSend; i++ {
		e := &messagev1.Envelope{ContentTopic: req.GetContentTopics()[0], TimestampNs: uint64(i), Message: []byte(fmt.Sprintf("m-%d", i))}
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	<-stream.Context().Done()
	return nil
}

func (s *messagesStub) SubscribeAll(req *messagev1.SubscribeAllRequest, stream messagev1.MessageApi_SubscribeAllServer) error {
	return s.Subscribe(&messagev1.SubscribeRequest{ContentTopics: []string{"any"}}, stream)
}

func (s *messagesStub) snapshot() ([]*messagev1.Envelope, []*messagev1.QueryRequest, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.queries, s.filter
}

func startGRPCStub(t *testing.T, svc messagev1.MessageApiServer) (addr string, stop func()) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer(grpc.ForceServerCodec(messagev1.Codec{}))
	messagev1.RegisterMessageApiServer(gs, svc)
	done := make(chan struct{})
	go func() {
		_ = gs.Serve(l)
		close(done)
	}()
	stop = func() {
		gs.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return l.Addr().String(), stop
}

func TestPublishGRPC_PrintsStatus(t *testing.T) {
	stub := &messagesStub{}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("COURIER_GRPC", addr)

	cmd := newPublishCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--topic", "/chat/1", "--data", "hi", "--data-b64", "AQI=", "--ts", "42"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "status: OK count: 2") {
		t.Fatalf("expected status in output, got: %s", buf.String())
	}
	published, _, _ := stub.snapshot()
	if len(published) != 2 {
		t.Fatalf("expected 2 published envelopes, got %d", len(published))
	}
	if e := published[1]; e.ContentTopic != "/chat/1" || e.TimestampNs != 42 || !bytes.Equal(e.Message, []byte{1, 2}) {
		t.Fatalf("unexpected envelope: %+v", e)
	}
}

func TestPublishGRPC_FlagValidation(t *testing.T) {
	cmd := newPublishCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--data", "hi"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --topic")
	}
}

func TestQueryGRPC_PrintsNextCursor(t *testing.T) {
	stub := &messagesStub{}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("COURIER_GRPC", addr)

	cmd := newQueryCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--topic", "/chat/1", "--limit", "1", "--desc"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var row map[string]any
	if err := json.Unmarshal(out.Bytes(), &row); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if row["topic"] != "/chat/1" || row["message_json"] == nil {
		t.Fatalf("unexpected row: %v", row)
	}
	if !strings.Contains(errOut.String(), "next_cursor: ZDE=:1") {
		t.Fatalf("expected next cursor, got %q", errOut.String())
	}
	_, queries, _ := stub.snapshot()
	q := queries[0]
	if q.GetPagingInfo().GetLimit() != 1 || q.GetPagingInfo().GetDirection() != messagev1.SortDirectionDescending {
		t.Fatalf("unexpected paging: %+v", q.GetPagingInfo())
	}
}

func TestQueryGRPC_AllPages(t *testing.T) {
	stub := &messagesStub{}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("COURIER_GRPC", addr)

	cmd := newQueryCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--topic", "/chat/1", "--all-pages"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d: %s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], `"message_b64":"//4="`) {
		t.Fatalf("expected base64 message, got %s", lines[1])
	}
	_, queries, _ := stub.snapshot()
	if len(queries) != 2 || string(queries[1].GetPagingInfo().GetCursor().GetIndex().GetDigest()) != "d1" {
		t.Fatalf("expected the second query to resume from the first cursor")
	}
}

func TestSubscribeGRPC_Limit(t *testing.T) {
	stub := &messagesStub{toSend: 5}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("COURIER_GRPC", addr)

	cmd := newSubscribeCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--topic", "/chat/1", "--limit", "3", "--filter", "size > 1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 output lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"message_text":"m-0"`) {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
	if _, _, filter := stub.snapshot(); filter != "size > 1" {
		t.Fatalf("filter not forwarded, got %q", filter)
	}
}

func TestSubscribeGRPC_All(t *testing.T) {
	stub := &messagesStub{toSend: 1}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("COURIER_GRPC", addr)

	cmd := newSubscribeCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--all", "--limit", "1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), `"topic":"any"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestSubscribeGRPC_FlagValidation(t *testing.T) {
	cmd := newSubscribeCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--topic", "a", "--all"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for conflicting flags, got nil")
	}
}

func TestTopicsHTTP(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/topics" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("topic")
		_, _ = w.Write([]byte(`{"topic":"/chat/1","count":3}`))
	}))
	defer ts.Close()

	cmd := newTopicsCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--topic", "/chat/1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotQuery != "/chat/1" {
		t.Fatalf("expected topic query param, got %q", gotQuery)
	}
	if !strings.Contains(buf.String(), `"count": 3`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestStatsHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cmd := newStatsCommand(func() string { return ts.URL })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := &transports.Cursor{Digest: []byte{1, 2, 3}, SenderTimeNs: 99}
	got, err := parseCursor(formatCursor(c))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(got.Digest, c.Digest) || got.SenderTimeNs != 99 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if _, err := parseCursor("nocolon"); err == nil {
		t.Fatalf("expected error for malformed cursor")
	}
}
