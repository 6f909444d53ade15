package messagev1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
)

// Courier extensions to the MessageApi, carried as gRPC metadata so the
// messages stay byte-compatible with other MessageApi clients.
const (
	// FilterKey holds a CEL filter for Subscribe and SubscribeAll.
	FilterKey = "x-courier-filter-bin"
	// EndCursorKey holds "<index>:<digest>" entries, one per Query or
	// BatchQuery request that stops before an exclusive end cursor. Query
	// uses index 0.
	EndCursorKey = "x-courier-end-cursor-bin"
	// QueryErrorKey is a BatchQuery trailer holding "<index>:<code>:<message>"
	// for every request that failed on its own.
	QueryErrorKey = "x-courier-query-error-bin"
)

// WithFilter attaches a subscription filter to an outgoing context.
func WithFilter(ctx context.Context, filter string) context.Context {
	if filter == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, FilterKey, filter)
}

// FilterFromContext returns the filter sent by the client, if any.
func FilterFromContext(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(FilterKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// WithEndCursor attaches the end cursor of request index to an outgoing
// context.
func WithEndCursor(ctx context.Context, index int, digest []byte) context.Context {
	if len(digest) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, EndCursorKey, strconv.Itoa(index)+":"+string(digest))
}

// EndCursorsFromContext returns the end cursors sent by the client, keyed by
// request index.
func EndCursorsFromContext(ctx context.Context) (map[int][]byte, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(EndCursorKey)
	if len(vals) == 0 {
		return nil, nil
	}
	out := make(map[int][]byte, len(vals))
	for _, v := range vals {
		idx, rest, ok := strings.Cut(v, ":")
		i, err := strconv.Atoi(idx)
		if !ok || err != nil || i < 0 {
			return nil, fmt.Errorf("malformed %s entry", EndCursorKey)
		}
		out[i] = []byte(rest)
	}
	return out, nil
}

// QueryError is the failure of one request inside a BatchQuery.
type QueryError struct {
	Index   int
	Code    codes.Code
	Message string
}

func (e QueryError) Error() string {
	return fmt.Sprintf("request %d: %s: %s", e.Index, e.Code, e.Message)
}

// QueryErrorTrailer encodes per-request errors for grpc.SetTrailer.
func QueryErrorTrailer(errs []QueryError) metadata.MD {
	md := metadata.MD{}
	for _, e := range errs {
		md.Append(QueryErrorKey, fmt.Sprintf("%d:%d:%s", e.Index, e.Code, e.Message))
	}
	return md
}

// QueryErrorsFromTrailer decodes the per-request errors of a BatchQuery
// trailer. Malformed entries are skipped.
func QueryErrorsFromTrailer(md metadata.MD) []QueryError {
	var out []QueryError
	for _, v := range md.Get(QueryErrorKey) {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) != 3 {
			continue
		}
		i, err1 := strconv.Atoi(parts[0])
		c, err2 := strconv.ParseUint(parts[1], 10, 32)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, QueryError{Index: i, Code: codes.Code(c), Message: parts[2]})
	}
	return out
}
