// Package httpserver exposes the MessageApi over JSON and Server-Sent Events
// for browsers and scripts, alongside health, topic stats and Prometheus
// metrics.
//
// Routes:
//
//	POST /v1/publish        {"envelopes":[{"topic":"t","timestamp_ns":1,"message":"aGk="}]}
//	POST /v1/query          {"topic":"t","limit":10,"direction":"desc"}
//	POST /v1/batch-query    {"queries":[{"topic":"t"},{"topic":"u"}]}
//	GET  /v1/subscribe      ?topic=t&topic=u&filter=size>10
//	GET  /v1/subscribe-all  ?filter=...
//	GET  /v1/topics         [?topic=t]
//	GET  /v1/stats
//	GET  /v1/healthz
//	GET  /metrics
package httpserver
