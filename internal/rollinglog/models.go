package rollinglog

import "time"

// Entry is one batch written to the rolling log.
type Entry struct {
	ID        int64
	WrittenAt time.Time
	Body      string
}
