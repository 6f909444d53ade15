package controllers

import (
	"github.com/rzbill/courier/internal/envelope"
	"github.com/rzbill/courier/internal/store"
)

// envelopeJSON is the JSON shape of an envelope. Message is base64.
type envelopeJSON struct {
	Topic       string `json:"topic"`
	TimestampNs uint64 `json:"timestamp_ns"`
	Message     []byte `json:"message"`
}

func fromStored(e envelope.StoredEnvelope) envelopeJSON {
	return envelopeJSON{Topic: e.Topic, TimestampNs: e.TimestampNs, Message: e.Message}
}

// publishReq represents a request to publish a batch of envelopes.
type publishReq struct {
	Envelopes []envelopeJSON `json:"envelopes"`
}

// publishResp acknowledges a stored batch.
type publishResp struct{}

// queryReq represents one query. Cursors are the opaque bytes returned as
// next_cursor, base64 encoded. Topics merges several topics into one page.
type queryReq struct {
	Topic       string   `json:"topic,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	StartCursor []byte   `json:"start_cursor,omitempty"`
	EndCursor   []byte   `json:"end_cursor,omitempty"`
	StartTimeNs uint64   `json:"start_time_ns,omitempty"`
	EndTimeNs   uint64   `json:"end_time_ns,omitempty"`
	Direction   string   `json:"direction,omitempty"`
	Limit       uint32   `json:"limit,omitempty"`
}

func (q queryReq) spec() (envelope.QuerySpec, error) {
	dir, err := parseDirection(q.Direction)
	if err != nil {
		return envelope.QuerySpec{}, err
	}
	return envelope.QuerySpec{
		Topic:       q.Topic,
		Topics:      q.Topics,
		StartCursor: q.StartCursor,
		EndCursor:   q.EndCursor,
		StartTimeNs: q.StartTimeNs,
		EndTimeNs:   q.EndTimeNs,
		Direction:   dir,
		Limit:       q.Limit,
	}, nil
}

type queryResp struct {
	Envelopes  []envelopeJSON `json:"envelopes"`
	NextCursor []byte         `json:"next_cursor,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func fromResult(res envelope.QueryResult) queryResp {
	out := queryResp{Envelopes: make([]envelopeJSON, len(res.Envelopes)), NextCursor: res.NextCursor}
	for i, e := range res.Envelopes {
		out.Envelopes[i] = fromStored(e)
	}
	return out
}

type batchQueryReq struct {
	Queries []queryReq `json:"queries"`
}

type batchQueryResp struct {
	Results []queryResp `json:"results"`
}

func errorResult(err error) queryResp {
	return queryResp{Envelopes: []envelopeJSON{}, Error: err.Error()}
}

// topicJSON is the client view of a topic's summary.
type topicJSON struct {
	Topic          string `json:"topic"`
	Count          uint64 `json:"count"`
	Bytes          uint64 `json:"bytes"`
	MinTimestampNs uint64 `json:"min_timestamp_ns"`
	MaxTimestampNs uint64 `json:"max_timestamp_ns"`
}

func fromTopic(t store.TopicInfo) topicJSON {
	return topicJSON{Topic: t.Topic, Count: t.Count, Bytes: t.Bytes, MinTimestampNs: t.MinTimestampNs, MaxTimestampNs: t.MaxTimestampNs}
}
