// Package runtime wires storage, the envelope store, the query engine and
// the subscription registry into a single-node Courier instance. It exposes
// Open/Close, a basic health check and accessors used by higher-level
// services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_, _ = rt.Store().Append(ctx, []envelope.Envelope{{Topic: "t", TimestampNs: 1, Message: []byte("hi")}})
package runtime
