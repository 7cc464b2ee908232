package udev

import (
	"context"
	"fmt"
	"io"
	"strings"

	libudev "github.com/jochenvg/go-udev"

	"k8s.io/klog/v2"
)

type udevClient struct {
	udev libudev.Udev
}

// NewClient returns a Client backed by libudev.
func NewClient() Client {
	return &udevClient{}
}

func (c *udevClient) Enumerate(subsystem string) ([]string, error) {
	enum := c.udev.NewEnumerate()

	devs, err := enum.Devices()
	if err != nil {
		klog.Errorf("udev: failed to enumerate devices: %v", err)
		return nil, err
	}

	paths := make([]string, 0, len(devs))
	for _, dev := range devs {
		if dev == nil || dev.Subsystem() != subsystem {
			continue
		}
		paths = append(paths, dev.Syspath())
	}
	return paths, nil
}

func (c *udevClient) DeviceFromSyspath(syspath string) (Device, error) {
	dev := c.udev.NewDeviceFromSyspath(syspath)
	if dev == nil {
		return nil, fmt.Errorf("udev: no device at %s", syspath)
	}
	return &udevDevice{dev: dev}, nil
}

func (c *udevClient) OpenMonitor(subsystem string) (MonitorSocket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	mon := c.udev.NewMonitorFromNetlink("udev")
	devCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		klog.Warningf("udev: netlink monitor unavailable, watching sysfs instead: %v", err)
		return OpenSysfsMonitor(sysfsDevicesDir(subsystem))
	}
	return &netlinkSocket{
		subsystem: subsystem,
		cancel:    cancel,
		devs:      devCh,
		errs:      errCh,
	}, nil
}

type udevDevice struct {
	dev *libudev.Device
}

func (d *udevDevice) Syspath() string {
	return d.dev.Syspath()
}

func (d *udevDevice) SysAttr(name string) string {
	return strings.TrimSpace(d.dev.SysattrValue(name))
}

func (d *udevDevice) Parent() Device {
	parent := d.dev.Parent()
	if parent == nil {
		return nil
	}
	return &udevDevice{dev: parent}
}

type netlinkSocket struct {
	subsystem string
	cancel    context.CancelFunc
	devs      <-chan *libudev.Device
	errs      <-chan error

	pending []RawEvent
	err     error
	eof     bool
}

func (s *netlinkSocket) Next() (RawEvent, bool, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, true, nil
		}
		if s.err != nil {
			return RawEvent{}, false, s.err
		}
		if s.eof {
			return RawEvent{}, false, io.EOF
		}

		select {
		case dev, ok := <-s.devs:
			if !ok {
				s.eof = true
				continue
			}
			s.stash(dev)
		case err := <-s.errs:
			s.err = err
		default:
			return RawEvent{}, false, nil
		}
	}
}

func (s *netlinkSocket) Ready(ctx context.Context) error {
	if len(s.pending) > 0 || s.err != nil || s.eof {
		return nil
	}
	select {
	case dev, ok := <-s.devs:
		if !ok {
			s.eof = true
			return nil
		}
		s.stash(dev)
		return nil
	case err := <-s.errs:
		s.err = err
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *netlinkSocket) stash(dev *libudev.Device) {
	if dev == nil || dev.Subsystem() != s.subsystem {
		return
	}
	klog.V(5).Infof("udev: received %q event on %s", dev.Action(), dev.Syspath())
	s.pending = append(s.pending, RawEvent{
		Syspath: dev.Syspath(),
		Action:  ParseAction(dev.Action()),
	})
}

func (s *netlinkSocket) Close() {
	s.cancel()
}
