package usbtrack

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/usbtrack/usbtrack/internal/udev"
)

// Monitor is a live hotplug feed over the Context's Id space. It must not
// outlive its Context, and a single consumer drives it at a time.
type Monitor struct {
	ctx  *Context
	sock udev.MonitorSocket
}

// Monitor opens a hotplug monitor for the usb subsystem.
func (c *Context) Monitor() (*Monitor, error) {
	sock, err := c.client.OpenMonitor(Subsystem)
	if err != nil {
		return nil, fmt.Errorf("usbtrack: open monitor: %w", err)
	}
	return &Monitor{ctx: c, sock: sock}, nil
}

// Poll reconciles pending raw events against the identity table and
// returns the next high-level event. The four outcomes are:
//
//	(ev, nil)      an event is ready
//	(nil, nil)     nothing pending yet; park in the socket and re-poll
//	(nil, io.EOF)  the underlying feed ended
//	(nil, err)     fatal monitor error; the caller must recreate the Monitor
//
// Suppressed raw events (adds of non-USB-device nodes, removals of
// untracked paths, change and unknown actions) never end the stream; Poll
// keeps consuming until it finds an event to surface or runs dry.
func (m *Monitor) Poll() (Event, error) {
	for {
		raw, ok, err := m.sock.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("usbtrack: monitor: %w", err)
		}
		if !ok {
			return nil, nil
		}

		switch raw.Action {
		case udev.ActionAdd:
			if id, added := m.ctx.addDevice(raw.Syspath); added {
				return Added{Device: id}, nil
			}
		case udev.ActionRemove:
			if id, removed := m.ctx.removeDevice(raw.Syspath); removed {
				return Removed{Device: id}, nil
			}
		case udev.ActionChange, udev.ActionUnknown:
			// Recognized but not surfaced yet.
		}
	}
}

// Next blocks until Poll produces an outcome other than "nothing pending"
// or ctx is done. The socket is re-armed on every cycle.
func (m *Monitor) Next(ctx context.Context) (Event, error) {
	for {
		ev, err := m.Poll()
		if ev != nil || err != nil {
			return ev, err
		}
		if err := m.sock.Ready(ctx); err != nil {
			return nil, err
		}
	}
}

// Close releases the underlying socket. Safe at any suspension point; no
// partially reconciled event survives.
func (m *Monitor) Close() {
	m.sock.Close()
}
