package store

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// The header carries the envelope's timestamp and sequence again so a record
// can be verified against the key it was read from.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const recordHeaderLen = 16

func encodeRecord(ts, seq uint64, payload []byte) []byte {
	header := make([]byte, 0, recordHeaderLen)
	header = appendBE8(header, ts)
	header = appendBE8(header, seq)

	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

type decodedRecord struct {
	TimestampNs uint64
	Seq         uint64
	Payload     []byte
}

func decodeRecord(b []byte) (decodedRecord, bool) {
	if len(b) < 1+4 {
		return decodedRecord{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen != recordHeaderLen {
		return decodedRecord{}, false
	}
	if n+int(hlen)+4 > len(b) {
		return decodedRecord{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return decodedRecord{}, false
	}
	return decodedRecord{
		TimestampNs: binary.BigEndian.Uint64(header[:8]),
		Seq:         binary.BigEndian.Uint64(header[8:]),
		Payload:     append([]byte(nil), payload...),
	}, true
}
