// Package client provides the `courier` command-line client.
//
// The CLI talks to the MessageApi gRPC endpoint for publish, query and
// subscribe, and to the HTTP endpoint for topic listings and stats.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080 (COURIER_HTTP). The gRPC address is
// read from COURIER_GRPC (default 127.0.0.1:50051).
//
// Usage
//
//	courier publish --topic /chat/1 --data hello --data world
//
//	courier query --topic /chat/1 --limit 10 --desc
//	courier query --topic /chat/1 --all-pages
//
//	courier subscribe --topic /chat/1 --topic /chat/2
//	courier subscribe --all --filter 'size > 100'
//
//	courier topics
//	courier topics --topic /chat/1
//	courier stats
//
// Envelopes are printed one JSON object per line. The message is shown as
// message_json when it parses as JSON, message_text when it is UTF-8, and
// message_b64 otherwise.
package client
