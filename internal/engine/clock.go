package engine

import "time"

// Clock supplies the wall time used to stamp lastModifiedTime and log
// entries. Injected so tests run with fixed time.
type Clock interface {
	NowMillis() int64
}

type systemClock struct{}

func (systemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// SystemClock returns the real-time clock.
func SystemClock() Clock {
	return systemClock{}
}
