package usbtrack

import (
	"context"
	"fmt"
	"io"

	"github.com/usbtrack/usbtrack/internal/udev"
)

type fakeDevice struct {
	syspath string
	attrs   map[string]string
	parent  *fakeDevice
}

func (d *fakeDevice) Syspath() string {
	return d.syspath
}

func (d *fakeDevice) SysAttr(name string) string {
	return d.attrs[name]
}

func (d *fakeDevice) Parent() udev.Device {
	if d.parent == nil {
		return nil
	}
	return d.parent
}

// usbDevice builds a device node carrying its own idVendor/idProduct, the
// shape of a real USB device (as opposed to interface) node.
func usbDevice(syspath, vendor, product string) *fakeDevice {
	return &fakeDevice{
		syspath: syspath,
		attrs: map[string]string{
			"idVendor":  vendor,
			"idProduct": product,
		},
	}
}

// interfaceDevice builds a bare node whose identifying attributes live on
// its parent, the shape of a USB interface node.
func interfaceDevice(syspath string, parent *fakeDevice) *fakeDevice {
	return &fakeDevice{
		syspath: syspath,
		attrs:   map[string]string{},
		parent:  parent,
	}
}

type fakeSocket struct {
	queue  []udev.RawEvent
	ended  bool
	err    error
	closed bool
}

func (s *fakeSocket) push(syspath string, action udev.Action) {
	s.queue = append(s.queue, udev.RawEvent{Syspath: syspath, Action: action})
}

func (s *fakeSocket) Next() (udev.RawEvent, bool, error) {
	if len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		return ev, true, nil
	}
	if s.err != nil {
		return udev.RawEvent{}, false, s.err
	}
	if s.ended {
		return udev.RawEvent{}, false, io.EOF
	}
	return udev.RawEvent{}, false, nil
}

func (s *fakeSocket) Ready(ctx context.Context) error {
	if len(s.queue) > 0 || s.err != nil || s.ended {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSocket) Close() {
	s.closed = true
}

type fakeClient struct {
	devices map[string]*fakeDevice
	order   []string

	socket     *fakeSocket
	monitorErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		devices: make(map[string]*fakeDevice),
		socket:  &fakeSocket{},
	}
}

// plug makes a device resolvable and part of the enumeration order.
func (c *fakeClient) plug(dev *fakeDevice) {
	if _, found := c.devices[dev.syspath]; !found {
		c.order = append(c.order, dev.syspath)
	}
	c.devices[dev.syspath] = dev
}

// unplug makes a device unresolvable, as after a physical disconnect.
func (c *fakeClient) unplug(syspath string) {
	delete(c.devices, syspath)
}

func (c *fakeClient) Enumerate(subsystem string) ([]string, error) {
	return append([]string(nil), c.order...), nil
}

func (c *fakeClient) DeviceFromSyspath(syspath string) (udev.Device, error) {
	dev, found := c.devices[syspath]
	if !found {
		return nil, fmt.Errorf("no device at %s", syspath)
	}
	return dev, nil
}

func (c *fakeClient) OpenMonitor(subsystem string) (udev.MonitorSocket, error) {
	if c.monitorErr != nil {
		return nil, c.monitorErr
	}
	return c.socket, nil
}
