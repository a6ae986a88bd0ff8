//go:build !linux

package thread

// Realtime locks nothing and changes nothing on platforms without realtime scheduling.
func Realtime(policy, priority int) error { return nil }
