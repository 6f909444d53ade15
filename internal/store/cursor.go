package store

import (
	"encoding/binary"
	"hash/crc32"
	"hash/fnv"

	"github.com/rzbill/courier/internal/envelope"
)

// Cursor wire format (45 bytes):
//
//	version(1) | instance(16) | topic_fnv64a(8) | ts_be8 | seq_be8 | crc32c(4)
//
// Clients treat it as opaque. Binding to instance and topic rejects cursors
// minted by another store or replayed against another topic.
const (
	cursorVersion = 1
	cursorLen     = 1 + 16 + 8 + 8 + 8 + 4
)

func topicHash(topic string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(topic))
	return h.Sum64()
}

// EncodeCursor serializes c as an opaque cursor for topic.
func (s *Store) EncodeCursor(topic string, c envelope.Cursor) []byte {
	b := make([]byte, 0, cursorLen)
	b = append(b, cursorVersion)
	b = append(b, s.instance[:]...)
	b = appendBE8(b, topicHash(topic))
	b = appendBE8(b, c.TimestampNs)
	b = appendBE8(b, c.Seq)
	return binary.BigEndian.AppendUint32(b, crc32.Checksum(b, castagnoli))
}

// DecodeCursor parses an opaque cursor issued by EncodeCursor for the same
// topic on this store. Any mismatch yields envelope.ErrInvalidCursor.
func (s *Store) DecodeCursor(topic string, b []byte) (envelope.Cursor, error) {
	if len(b) != cursorLen {
		return envelope.Cursor{}, envelope.ErrInvalidCursor
	}
	body, sum := b[:cursorLen-4], binary.BigEndian.Uint32(b[cursorLen-4:])
	if crc32.Checksum(body, castagnoli) != sum {
		return envelope.Cursor{}, envelope.ErrInvalidCursor
	}
	if body[0] != cursorVersion {
		return envelope.Cursor{}, envelope.ErrInvalidCursor
	}
	if string(body[1:17]) != string(s.instance[:]) {
		return envelope.Cursor{}, envelope.ErrInvalidCursor
	}
	if binary.BigEndian.Uint64(body[17:25]) != topicHash(topic) {
		return envelope.Cursor{}, envelope.ErrInvalidCursor
	}
	return envelope.Cursor{
		TimestampNs: binary.BigEndian.Uint64(body[25:33]),
		Seq:         binary.BigEndian.Uint64(body[33:41]),
	}, nil
}
