// Package grpcserver hosts the gRPC server for Courier, registering the
// xmtp.message_api.v1.MessageApi service and the standard health service
// and delegating to the messages service.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	svc, _ := messagesvc.New(rt, messagesvc.Options{})
//	s := grpcserver.New(svc, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":5556")
package grpcserver
