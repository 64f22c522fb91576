package engine

// Page tokens pack the resume position of a paged read into one int64:
// bit 62 carries the sort direction, bits 18..61 the timestamp of the
// next row, bits 0..17 how many rows sharing that timestamp were
// already returned. NoPageToken marks an unset token; at end of stream
// the engine echoes the caller's token back unchanged.
const (
	NoPageToken int64 = -1

	tokenOffsetBits = 18
	tokenOffsetMask = (1 << tokenOffsetBits) - 1
	tokenTimeBits   = 44
	tokenTimeMask   = (1 << tokenTimeBits) - 1
)

type pageToken struct {
	ascending bool
	time      int64
	offset    int
}

func (p pageToken) pack() int64 {
	v := (p.time & tokenTimeMask) << tokenOffsetBits
	v |= int64(p.offset) & tokenOffsetMask
	if p.ascending {
		v |= 1 << 62
	}
	return v
}

func unpackPageToken(v int64) (pageToken, bool) {
	if v < 0 {
		return pageToken{}, false
	}
	return pageToken{
		ascending: v&(1<<62) != 0,
		time:      (v >> tokenOffsetBits) & tokenTimeMask,
		offset:    int(v & tokenOffsetMask),
	}, true
}
