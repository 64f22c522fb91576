package identity

import (
	"crypto/md5"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Deterministic derives the stable UUID for a record carrying a
// client-supplied identifier.
//
// The hash input is the concatenation of:
//   - the owning package name, NFC-normalized so visually identical
//     identifiers produce the same bytes
//   - the record type's uuid-namespace id as 4 big-endian bytes
//   - the client record id
//
// The digest is laid out as an RFC 4122 version-3 (MD5 name-based)
// UUID. The same (packageName, clientRecordID, namespace) triple always
// yields the same UUID, which is what makes re-insertion with the same
// client id an idempotent upsert rather than a duplicate.
func Deterministic(packageName, clientRecordID string, namespace int32) uuid.UUID {
	pkg := norm.NFC.String(packageName)

	buf := make([]byte, 0, len(pkg)+4+len(clientRecordID))
	buf = append(buf, pkg...)
	buf = append(buf,
		byte(namespace>>24), byte(namespace>>16), byte(namespace>>8), byte(namespace))
	buf = append(buf, clientRecordID...)

	sum := md5.Sum(buf)
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant

	out, _ := uuid.FromBytes(sum[:])
	return out
}

// Random returns a fresh random UUID for records without a client id.
// Every insert of such a record is a new identity.
func Random() uuid.UUID {
	return uuid.New()
}
