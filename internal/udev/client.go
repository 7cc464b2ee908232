// Package udev wraps the host device subsystem behind small interfaces so
// the tracking layer can be driven by fakes in tests and by libudev in
// production.
package udev

import (
	"context"
)

// Device is a single node in the host device tree.
type Device interface {
	Syspath() string
	// SysAttr returns the device's own attribute value, trimmed, or ""
	// when the attribute is absent or unreadable. Parent attributes are
	// not consulted.
	SysAttr(name string) string
	// Parent returns the next node up the device tree, or nil at the root.
	Parent() Device
}

// RawEvent is one decoded uevent from a monitor socket.
type RawEvent struct {
	Syspath string
	Action  Action
}

// MonitorSocket is a live uevent feed. It never blocks in Next; callers
// park in Ready between polls and re-arm it on every cycle.
type MonitorSocket interface {
	// Next returns the next pending event. ok is false when nothing is
	// pending; err is io.EOF once the feed has ended, and sticky on a
	// fatal transport error.
	Next() (ev RawEvent, ok bool, err error)
	// Ready blocks until an event may be pending, the feed ends, or ctx
	// is done.
	Ready(ctx context.Context) error
	Close()
}

// Client enumerates devices and opens monitor feeds for one subsystem at
// a time.
type Client interface {
	Enumerate(subsystem string) ([]string, error)
	DeviceFromSyspath(syspath string) (Device, error)
	OpenMonitor(subsystem string) (MonitorSocket, error)
}
