//go:build !linux

package ondemand

import "time"

func platformSource(pollInterval time.Duration) Source {
	return PollSource(pollInterval)
}
