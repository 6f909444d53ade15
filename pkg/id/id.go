package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit sortable identifier: [8 bytes unix ms][8 bytes sequence],
// both big-endian.
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the millisecond the ID was issued at.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[0:8])))
}

// Seq returns the per-millisecond sequence.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

func (i ID) IsZero() bool { return i == ID{} }

// Compare returns -1, 0, 1 based on byte order.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Generator issues strictly increasing IDs. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	now      func() time.Time
	lastMs   int64
	sequence uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next returns a new ID. A clock that moves backwards is pinned to the last
// millisecond issued; an exhausted sequence moves to the next millisecond
// without waiting for the clock.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	switch {
	case ms > g.lastMs:
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		ms = g.lastMs + 1
		g.sequence = 0
	default:
		ms = g.lastMs
		g.sequence++
	}
	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}
