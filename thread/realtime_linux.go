//go:build linux

package thread

import (
	"runtime"
	"syscall"
	"unsafe"
)

type schedParam struct {
	Priority int32
}

// Realtime locks the calling goroutine to its own kernel thread and elevates that
// thread's priority to realtime using the given policy (FIFO or RR) and priority.
// The goroutine stays locked to its thread even if the priority change fails.
func Realtime(policy, priority int) error {
	runtime.LockOSThread()
	tid := syscall.Gettid()
	res, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER, uintptr(tid),
		uintptr(policy), uintptr(unsafe.Pointer(&schedParam{int32(priority)})))
	if res == 0 {
		return nil
	}
	return err
}
