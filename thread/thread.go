// Package thread raises the scheduling priority of the goroutine servicing a radio, so that
// packets are pulled out of the radio's FIFO promptly even on a loaded Raspberry Pi.
package thread

// Scheduling policies accepted by Realtime.
const (
	FIFO = 1 // fifo scheduling policy
	RR   = 2 // round-robin scheduling policy
)

// DefaultPriority is somewhere in the lower middle of the realtime range.
const DefaultPriority = 10
