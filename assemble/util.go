package assemble

import "time"

func delayDuration(ms int) time.Duration {
	if ms <= 0 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}
