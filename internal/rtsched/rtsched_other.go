//go:build !linux

package rtsched

import "fmt"

func platformApply(priority int) error {
	return fmt.Errorf("rtsched: schedule-realtime not implemented on this platform")
}
