package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/courier/internal/envelope"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s, err := Open(db, Options{})
	require.NoError(t, err)
	return s
}

func env(topic string, ts uint64, msg string) envelope.Envelope {
	return envelope.Envelope{Topic: topic, TimestampNs: ts, Message: []byte(msg)}
}

func messages(envs []envelope.StoredEnvelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = string(e.Message)
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	ranges [][2]uint64
	failed int
	envs   []envelope.StoredEnvelope
}

func (o *recordingObserver) Appended(first, last uint64, envs []envelope.StoredEnvelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ranges = append(o.ranges, [2]uint64{first, last})
	if envs == nil {
		o.failed++
	}
	o.envs = append(o.envs, envs...)
}

func TestAppendAssignsIncreasingSeqInInputOrder(t *testing.T) {
	s := newTestStore(t)
	obs := &recordingObserver{}
	s.SetObserver(obs)

	stored, err := s.Append(context.Background(), []envelope.Envelope{env("b", 5, "y"), env("a", 1, "x"), env("a", 2, "z")})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{stored[0].Seq, stored[1].Seq, stored[2].Seq})
	assert.Equal(t, uint64(3), s.LastSeq())

	require.Len(t, obs.ranges, 1)
	assert.Equal(t, [2]uint64{1, 3}, obs.ranges[0])
	assert.Len(t, obs.envs, 3)
}

// commitCancelCtx reports cancellation from its second Err call on, which
// lets Append start and then fails the batch commit.
type commitCancelCtx struct {
	context.Context
	calls atomic.Int32
}

func (c *commitCancelCtx) Err() error {
	if c.calls.Add(1) > 1 {
		return context.Canceled
	}
	return nil
}

func TestFailedCommitLeavesNoSequenceGap(t *testing.T) {
	s := newTestStore(t)
	obs := &recordingObserver{}
	s.SetObserver(obs)
	ctx := context.Background()

	_, err := s.Append(ctx, []envelope.Envelope{env("a", 1, "x")})
	require.NoError(t, err)

	_, err = s.Append(&commitCancelCtx{Context: ctx}, []envelope.Envelope{env("a", 2, "lost"), env("b", 2, "lost")})
	require.ErrorIs(t, err, envelope.ErrUnavailable)
	assert.Equal(t, uint64(1), s.LastSeq())

	stored, err := s.Append(ctx, []envelope.Envelope{env("b", 3, "y")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stored[0].Seq, "the failed range is reused")

	got, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, messages(got))
	assert.Equal(t, [][2]uint64{{1, 1}, {2, 2}}, obs.ranges)
	assert.Zero(t, obs.failed)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	stored, err := s.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Zero(t, s.LastSeq())
}

func TestAppendCancelledContextWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Append(ctx, []envelope.Envelope{env("a", 1, "x")})
	assert.ErrorIs(t, err, envelope.ErrUnavailable)

	got, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadRangeOrderAndResume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	// out of timestamp order on purpose; equal timestamps tie-break by seq
	_, err := s.Append(ctx, []envelope.Envelope{env("a", 30, "c"), env("a", 10, "a"), env("a", 20, "b1"), env("a", 20, "b2")})
	require.NoError(t, err)

	all, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, messages(all))

	c := all[1].Cursor()
	rest, err := s.ReadRange(s.Live(), "a", &c, envelope.DirectionAscending, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2", "c"}, messages(rest))

	desc, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionDescending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b2", "b1", "a"}, messages(desc))

	c = desc[1].Cursor()
	older, err := s.ReadRange(s.Live(), "a", &c, envelope.DirectionDescending, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "a"}, messages(older))
}

func TestTopicsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	// "ab" must not leak into a scan of "a" even though it shares a prefix
	_, err := s.Append(ctx, []envelope.Envelope{env("a", 1, "a1"), env("ab", 1, "ab1"), env("a", 2, "a2")})
	require.NoError(t, err)

	got, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, messages(got))

	none, err := s.ReadRange(s.Live(), "missing", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScanSpans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var envs []envelope.Envelope
	for i := 1; i <= 5; i++ {
		envs = append(envs, env("t", uint64(i*10), fmt.Sprint(i)))
	}
	stored, err := s.Append(ctx, envs)
	require.NoError(t, err)

	from := envelope.Cursor{TimestampNs: 20}
	to := envelope.Cursor{TimestampNs: 40, Seq: ^uint64(0)}
	got, err := s.Scan(s.Live(), "t", Span{AtOrAfter: &from, AtOrBefore: &to}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4"}, messages(got))

	before := stored[3].Cursor()
	after := stored[0].Cursor()
	got, err = s.Scan(s.Live(), "t", Span{After: &after, Before: &before}, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, messages(got))

	got, err = s.Scan(s.Live(), "t", Span{After: &before, Before: &after}, false, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Append(ctx, []envelope.Envelope{env("a", 1, "old")})
	require.NoError(t, err)

	snap := s.Snapshot()
	defer snap.Close()
	_, err = s.Append(ctx, []envelope.Envelope{env("a", 2, "new")})
	require.NoError(t, err)

	frozen, err := s.ReadRange(snap, "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, messages(frozen))

	live, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, messages(live))
}

func TestReopenRecoversSequenceAndInstance(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	s, err := Open(db, Options{})
	require.NoError(t, err)
	_, err = s.Append(context.Background(), []envelope.Envelope{env("a", 1, "x"), env("b", 1, "y")})
	require.NoError(t, err)
	inst := s.Instance()
	cur := s.EncodeCursor("a", envelope.Cursor{TimestampNs: 1, Seq: 1})
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	defer db.Close()
	s, err = Open(db, Options{})
	require.NoError(t, err)
	assert.Equal(t, inst, s.Instance())
	assert.Equal(t, uint64(2), s.LastSeq())

	_, err = s.DecodeCursor("a", cur)
	assert.NoError(t, err, "cursor survives restart")

	stored, err := s.Append(context.Background(), []envelope.Envelope{env("a", 2, "z")})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stored[0].Seq)
}

func TestCursorRoundTripAndRejection(t *testing.T) {
	s := newTestStore(t)
	other := newTestStore(t)
	c := envelope.Cursor{TimestampNs: 42, Seq: 7}
	raw := s.EncodeCursor("a", c)

	got, err := s.DecodeCursor("a", raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = s.DecodeCursor("b", raw)
	assert.ErrorIs(t, err, envelope.ErrInvalidCursor)
	_, err = other.DecodeCursor("a", raw)
	assert.ErrorIs(t, err, envelope.ErrInvalidCursor)
	_, err = s.DecodeCursor("a", raw[:10])
	assert.ErrorIs(t, err, envelope.ErrInvalidCursor)

	tampered := append([]byte(nil), raw...)
	tampered[30] ^= 0xff
	_, err = s.DecodeCursor("a", tampered)
	assert.ErrorIs(t, err, envelope.ErrInvalidCursor)
	assert.ErrorIs(t, err, envelope.ErrInvalidArgument)

	version := append([]byte(nil), raw...)
	version[0] = 9
	_, err = s.DecodeCursor("a", version)
	assert.ErrorIs(t, err, envelope.ErrInvalidCursor)
}

func TestConcurrentAppendsKeepPerTopicOrder(t *testing.T) {
	s := newTestStore(t)
	obs := &recordingObserver{}
	s.SetObserver(obs)
	ctx := context.Background()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			topic := fmt.Sprintf("t%d", w%2)
			for i := 0; i < perWriter; i++ {
				_, err := s.Append(ctx, []envelope.Envelope{env(topic, 1, fmt.Sprintf("%d-%d", w, i))})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, uint64(writers*perWriter), s.LastSeq())
	seqs := make([]uint64, 0, len(obs.envs))
	for _, e := range obs.envs {
		seqs = append(seqs, e.Seq)
	}
	assert.Len(t, seqs, writers*perWriter)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i := range seqs {
		require.Equal(t, uint64(i+1), seqs[i], "sequence ids are unique and dense")
	}

	// per topic the observer sees append order == seq order
	last := map[string]uint64{}
	for _, e := range obs.envs {
		require.Greater(t, e.Seq, last[e.Topic])
		last[e.Topic] = e.Seq
	}
}

func TestTopicStatsAndList(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(context.Background(), []envelope.Envelope{env("b", 9, "xx"), env("a", 3, "y"), env("b", 4, "zzz")})
	require.NoError(t, err)

	m, ok, err := s.TopicStats("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TopicMeta{Count: 2, Bytes: 5, LastSeq: 3, MinTimestampNs: 4, MaxTimestampNs: 9}, m)

	_, ok, err = s.TopicStats("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.Topics()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Topic)
	assert.Equal(t, "b", list[1].Topic)
}

type recordingArchiver struct {
	deleted int
	upTo    envelope.Cursor
}

func (a *recordingArchiver) EmitTrimRange(_ string, n int, upTo envelope.Cursor) {
	a.deleted += n
	a.upTo = upTo
}

func TestTrimOlderThan(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	arch := &recordingArchiver{}
	s, err := Open(db, Options{Archiver: arch})
	require.NoError(t, err)
	ctx := context.Background()

	var envs []envelope.Envelope
	for i := 1; i <= 10; i++ {
		envs = append(envs, env("a", uint64(i), "m"))
	}
	envs = append(envs, env("b", 100, "keep"))
	_, err = s.Append(ctx, envs)
	require.NoError(t, err)

	n, err := s.TrimOlderThan(ctx, 6, TrimOptions{BatchLimit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, arch.deleted)
	assert.Equal(t, uint64(5), arch.upTo.TimestampNs)

	left, err := s.ReadRange(s.Live(), "a", nil, envelope.DirectionAscending, 0)
	require.NoError(t, err)
	require.Len(t, left, 5)
	assert.Equal(t, uint64(6), left[0].TimestampNs)

	m, _, err := s.TopicStats("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), m.Count)
	assert.Equal(t, uint64(6), m.MinTimestampNs)
	assert.Equal(t, uint64(10), m.LastSeq, "trim keeps the sequencer high-water mark")

	n, err = s.TrimOlderThan(ctx, 1000, TrimOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	m, ok, err := s.TopicStats("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, m.Count)
}

func TestRecordCodecDetectsCorruption(t *testing.T) {
	raw := encodeRecord(5, 9, []byte("payload"))
	rec, ok := decodeRecord(raw)
	require.True(t, ok)
	assert.Equal(t, uint64(5), rec.TimestampNs)
	assert.Equal(t, uint64(9), rec.Seq)
	assert.Equal(t, "payload", string(rec.Payload))

	raw[len(raw)-6] ^= 0x01
	_, ok = decodeRecord(raw)
	assert.False(t, ok)
	_, ok = decodeRecord([]byte{1})
	assert.False(t, ok)
}
