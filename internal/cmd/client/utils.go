package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	transports "github.com/rzbill/courier/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from COURIER_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("COURIER_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext dials the MessageApi endpoint with insecure transport for local/dev.
func dialGRPCContext(ctx context.Context) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func getTransport() transports.MessagesTransport {
	return transports.NewGrpcTransport(dialGRPCContext)
}

// decodedEnvelope renders e with its message as message_json, message_text
// or message_b64, whichever fits first.
func decodedEnvelope(e transports.Envelope) map[string]any {
	out := map[string]any{
		"topic":        e.Topic,
		"timestamp_ns": e.TimestampNs,
	}
	payload := e.Message
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["message_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["message_text"] = string(payload)
		return out
	}
	out["message_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

// getJSON fetches url and pretty-prints the JSON body to w.
func getJSON(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("http error: %s", resp.Status)
	}
	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
