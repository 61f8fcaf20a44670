package tcp

import "time"

// Nanoseconds is the wire representation spec §6.3 mandates for every
// duration-valued socket option: a plain u64 count of nanoseconds, rather
// than a time.Duration, so the guest-facing surface matches the integer
// type the WASI interface actually transports.
type Nanoseconds uint64

func durationToNanoseconds(d time.Duration) Nanoseconds {
	if d < 0 {
		return 0
	}
	return Nanoseconds(d.Nanoseconds())
}

func nanosecondsToDuration(ns Nanoseconds) time.Duration {
	return time.Duration(ns)
}
