package identity

// InstantFingerprint returns the dedupe fingerprint for a point-in-time
// record: (appInfoID, deviceInfoID, time), 24 bytes.
//
// Two records from the same app and device at the same instant collapse
// to the same fingerprint. Callers must not compute a fingerprint for
// records carrying a client record id (client-id identity already
// dedupes) or for types where same-timestamp duplicates are
// semantically valid.
func InstantFingerprint(appInfoID, deviceInfoID, timeMillis int64) []byte {
	buf := make([]byte, 0, 24)
	buf = PutInt64(buf, appInfoID)
	buf = PutInt64(buf, deviceInfoID)
	buf = PutInt64(buf, timeMillis)
	return buf
}

// IntervalFingerprint returns the dedupe fingerprint for an interval
// record: (appInfoID, deviceInfoID, startTime, endTime), 32 bytes.
func IntervalFingerprint(appInfoID, deviceInfoID, startMillis, endMillis int64) []byte {
	buf := make([]byte, 0, 32)
	buf = PutInt64(buf, appInfoID)
	buf = PutInt64(buf, deviceInfoID)
	buf = PutInt64(buf, startMillis)
	buf = PutInt64(buf, endMillis)
	return buf
}
