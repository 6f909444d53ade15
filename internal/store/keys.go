package store

import (
	"encoding/binary"
)

// Keyspace (byte-wise sortable):
//   - m/instance                                  instance id
//   - m/topic/{topic}                             TopicMeta (json)
//   - t/{len_be2}{topic}/{ts_be8}{seq_be8}        record
//
// The topic length prefix keeps one topic's entries from sharing a prefix
// with another's, so a topic range is exactly [prefix, prefix with '/'+1).

var (
	keyInstance     = []byte("m/instance")
	topicMetaPrefix = []byte("m/topic/")
	entryPrefix     = []byte("t/")
)

const entrySuffixLen = 16

func appendBE2(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyTopicMeta builds the metadata key for topic.
func keyTopicMeta(topic string) []byte {
	k := make([]byte, 0, len(topicMetaPrefix)+len(topic))
	k = append(k, topicMetaPrefix...)
	return append(k, topic...)
}

// keyTopicPrefix is the common prefix of every entry of topic.
func keyTopicPrefix(topic string) []byte {
	k := make([]byte, 0, len(entryPrefix)+2+len(topic)+1+entrySuffixLen)
	k = append(k, entryPrefix...)
	k = appendBE2(k, uint16(len(topic)))
	k = append(k, topic...)
	return append(k, '/')
}

// keyTopicEnd is the exclusive upper bound of topic's entries.
func keyTopicEnd(topic string) []byte {
	k := keyTopicPrefix(topic)
	k[len(k)-1] = '/' + 1
	return k
}

// keyEntry builds an entry key ordered by (timestamp, sequence).
func keyEntry(topic string, ts, seq uint64) []byte {
	k := keyTopicPrefix(topic)
	k = appendBE8(k, ts)
	return appendBE8(k, seq)
}

// keySuccessor returns the smallest key strictly greater than k.
func keySuccessor(k []byte) []byte {
	out := make([]byte, len(k)+1)
	copy(out, k)
	return out
}

// parseEntrySuffix extracts (ts, seq) from an entry key.
func parseEntrySuffix(k []byte) (ts, seq uint64, ok bool) {
	if len(k) < entrySuffixLen {
		return 0, 0, false
	}
	s := k[len(k)-entrySuffixLen:]
	return binary.BigEndian.Uint64(s[:8]), binary.BigEndian.Uint64(s[8:]), true
}
