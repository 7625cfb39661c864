package trash

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	recordKeyAdded        = "added"
	recordKeyOriginalPath = "original_path"
)

// Entry describes one file held in the store.
type Entry struct {
	StoredName   string
	OriginalPath string
	AddedAt      time.Time
}

// Age reports how long the entry has been in the store at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.AddedAt)
}

// EncodeRecord renders the metadata record for e. AddedAt is stored as
// milliseconds since the Unix epoch.
func EncodeRecord(e Entry) []byte {
	var b strings.Builder
	b.Grow(32 + len(e.OriginalPath))
	b.WriteString(recordKeyAdded)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(e.AddedAt.UnixMilli(), 10))
	b.WriteByte('\n')
	b.WriteString(recordKeyOriginalPath)
	b.WriteByte(':')
	b.WriteString(e.OriginalPath)
	b.WriteByte('\n')
	return []byte(b.String())
}

// ParseRecord reads a record written by EncodeRecord. Unknown keys are
// ignored; a missing or unparsable added key is an error. The original path
// value is kept verbatim apart from a trailing carriage return.
func ParseRecord(name string, data []byte) (Entry, error) {
	entry := Entry{StoredName: name}
	var sawAdded bool
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case recordKeyAdded:
			millis, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return Entry{}, fmt.Errorf("%w: %s: added %q", ErrMalformedRecord, name, value)
			}
			entry.AddedAt = time.UnixMilli(millis)
			sawAdded = true
		case recordKeyOriginalPath:
			entry.OriginalPath = value
		}
	}
	if !sawAdded {
		return Entry{}, fmt.Errorf("%w: %s: missing %s", ErrMalformedRecord, name, recordKeyAdded)
	}
	return entry, nil
}
