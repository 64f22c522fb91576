package identity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// UUIDSize is the stored width of a record identity: the 8 high bytes
// followed by the 8 low bytes, big-endian.
const UUIDSize = 16

// EncodeUUID returns the 16-byte column form of a UUID.
func EncodeUUID(u uuid.UUID) []byte {
	out := make([]byte, UUIDSize)
	copy(out, u[:])
	return out
}

// DecodeUUID parses the 16-byte column form back into a UUID.
func DecodeUUID(b []byte) (uuid.UUID, error) {
	if len(b) != UUIDSize {
		return uuid.Nil, fmt.Errorf("decode uuid: want %d bytes, got %d", UUIDSize, len(b))
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode uuid: %w", err)
	}
	return u, nil
}

// ConcatUUIDs packs a list of UUIDs into one blob, 16 bytes each, in
// input order. Change-log rows store their affected ids this way.
func ConcatUUIDs(ids []uuid.UUID) []byte {
	out := make([]byte, 0, len(ids)*UUIDSize)
	for _, u := range ids {
		out = append(out, u[:]...)
	}
	return out
}

// SplitUUIDs unpacks a blob written by ConcatUUIDs.
func SplitUUIDs(b []byte) ([]uuid.UUID, error) {
	if len(b)%UUIDSize != 0 {
		return nil, fmt.Errorf("split uuids: blob length %d not a multiple of %d", len(b), UUIDSize)
	}
	out := make([]uuid.UUID, 0, len(b)/UUIDSize)
	for off := 0; off < len(b); off += UUIDSize {
		u, err := uuid.FromBytes(b[off : off+UUIDSize])
		if err != nil {
			return nil, fmt.Errorf("split uuids: %w", err)
		}
		out = append(out, u)
	}
	return out, nil
}

// HexLiteral renders a UUID as a SQL blob literal (x'...') for use in
// predicate strings built by the clause package.
func HexLiteral(u uuid.UUID) string {
	return "x'" + hex.EncodeToString(u[:]) + "'"
}

// PutInt32 appends the 4-byte big-endian form of v.
func PutInt32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

// PutInt64 appends the 8-byte big-endian form of v.
func PutInt64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

// PutFloat64 appends the 8-byte big-endian IEEE-754 form of v.
func PutFloat64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}
