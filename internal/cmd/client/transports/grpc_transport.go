// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	messagev1 "github.com/rzbill/courier/api/message/v1"
)

// GrpcTransport implements MessagesTransport over gRPC.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli messagev1.MessageApiClient) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(messagev1.NewMessageApiClient(conn))
}

// Publish sends envs as one batch.
func (t *GrpcTransport) Publish(ctx context.Context, envs []Envelope) error {
	return t.withClient(ctx, func(cli messagev1.MessageApiClient) error {
		req := &messagev1.PublishRequest{Envelopes: make([]*messagev1.Envelope, len(envs))}
		for i, e := range envs {
			req.Envelopes[i] = &messagev1.Envelope{ContentTopic: e.Topic, TimestampNs: e.TimestampNs, Message: e.Message}
		}
		_, err := cli.Publish(ctx, req)
		return err
	})
}

// Query reads one page.
func (t *GrpcTransport) Query(ctx context.Context, req QueryRequest) ([]Envelope, *Cursor, error) {
	var (
		items []Envelope
		next  *Cursor
	)
	err := t.withClient(ctx, func(cli messagev1.MessageApiClient) error {
		paging := &messagev1.PagingInfo{Limit: req.Limit, Direction: messagev1.SortDirectionAscending}
		if req.Descending {
			paging.Direction = messagev1.SortDirectionDescending
		}
		if req.Cursor != nil {
			paging.Cursor = &messagev1.Cursor{Index: &messagev1.IndexCursor{Digest: req.Cursor.Digest, SenderTimeNs: req.Cursor.SenderTimeNs}}
		}
		resp, err := cli.Query(ctx, &messagev1.QueryRequest{
			ContentTopics: []string{req.Topic},
			StartTimeNs:   req.StartTimeNs,
			EndTimeNs:     req.EndTimeNs,
			PagingInfo:    paging,
		})
		if err != nil {
			return err
		}
		items = make([]Envelope, 0, len(resp.GetEnvelopes()))
		for _, e := range resp.GetEnvelopes() {
			items = append(items, fromWire(e))
		}
		if idx := resp.GetPagingInfo().GetCursor().GetIndex(); idx != nil {
			next = &Cursor{Digest: idx.GetDigest(), SenderTimeNs: idx.SenderTimeNs}
		}
		return nil
	})
	return items, next, err
}

// Subscribe streams envelopes to onEnvelope until the server ends the
// stream, ctx ends, or onEnvelope fails. req.Limit > 0 stops after that many.
func (t *GrpcTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEnvelope func(Envelope) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return t.withClient(ctx, func(cli messagev1.MessageApiClient) error {
		var (
			stream messagev1.MessageApi_SubscribeClient
			err    error
		)
		sctx := messagev1.WithFilter(ctx, req.Filter)
		if req.All {
			stream, err = cli.SubscribeAll(sctx, &messagev1.SubscribeAllRequest{})
		} else {
			stream, err = cli.Subscribe(sctx, &messagev1.SubscribeRequest{ContentTopics: req.Topics})
		}
		if err != nil {
			return err
		}
		received := 0
		for {
			e, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
					return nil
				}
				return err
			}
			if err := onEnvelope(fromWire(e)); err != nil {
				return err
			}
			received++
			if req.Limit > 0 && received >= req.Limit {
				return nil
			}
		}
	})
}

func fromWire(e *messagev1.Envelope) Envelope {
	return Envelope{Topic: e.GetContentTopic(), TimestampNs: e.GetTimestampNs(), Message: e.GetMessage()}
}
