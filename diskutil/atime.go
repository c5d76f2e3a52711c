package diskutil

import (
	"time"

	"github.com/djherbis/atime"
)

// GetATime returns the last access time of path, or def when it cannot be
// determined.
func GetATime(path string, def time.Time) time.Time {
	at, err := atime.Stat(path)
	if err != nil {
		return def
	}
	return at
}
