//go:build linux

package rtsched

import "golang.org/x/sys/unix"

func platformApply(priority int) error {
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(priority)})
}
