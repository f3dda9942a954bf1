package session

import (
	"strconv"
	"strings"
	"time"
)

// Report is the parsed form of the engine's status text.
type Report struct {
	LastHandshakeSec int64
	RxBytes          uint64
	TxBytes          uint64
	Endpoint         string
}

// LastHandshake returns the handshake time, or the zero time if none happened.
func (r Report) LastHandshake() time.Time {
	if r.LastHandshakeSec <= 0 {
		return time.Time{}
	}
	return time.Unix(r.LastHandshakeSec, 0)
}

// ParseReport reads the key=value lines of a status response. Unknown keys
// and malformed values are ignored; only the first peer is considered.
func ParseReport(text string) Report {
	var r Report
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || seen[key] {
			continue
		}
		switch key {
		case "last_handshake_time_sec":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
				r.LastHandshakeSec = n
			}
		case "rx_bytes":
			r.RxBytes, _ = strconv.ParseUint(value, 10, 64)
		case "tx_bytes":
			r.TxBytes, _ = strconv.ParseUint(value, 10, 64)
		case "endpoint":
			r.Endpoint = value
		default:
			continue
		}
		seen[key] = true
	}
	return r
}

// LastHandshake extracts last_handshake_time_sec from status text; 0 means
// no handshake or no such field.
func LastHandshake(text string) int64 {
	return ParseReport(text).LastHandshakeSec
}
