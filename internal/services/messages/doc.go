// Package messagesvc is the MessageApi core facade. It validates requests
// against the configured limits and routes them to the envelope store
// (Publish), the subscription registry (Subscribe, SubscribeAll and the
// streaming StreamSubscribe) and the query engine (Query, BatchQuery).
//
// Subscriptions may carry a CEL filter evaluated per envelope with the
// variables topic, ts_ns, size, text, json and now_ns, for example:
//
//	json.kind == "invite" && size < 4096
//
// When retentionAgeMs is configured a background loop trims envelopes whose
// timestamp is older than the age.
package messagesvc
