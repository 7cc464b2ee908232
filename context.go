package usbtrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"k8s.io/klog/v2"

	"github.com/usbtrack/usbtrack/internal/stream"
	"github.com/usbtrack/usbtrack/internal/udev"
)

// entry is one identity-table slot. An empty syspath means the id is
// still valid but the device is disconnected. Vendor and product IDs are
// the best-effort snapshot taken when the device was first seen; they are
// never refreshed.
type entry struct {
	syspath string

	vendorID     uint16
	hasVendorID  bool
	productID    uint16
	hasProductID bool
}

// Context owns the identity table and the subsystem client. The table
// only ever grows; entries are tombstoned in place on removal so that
// issued Ids stay dense and are never reused.
type Context struct {
	client udev.Client

	mu    sync.Mutex
	table []entry

	events *stream.Broadcast[Event]
}

// New creates a Context and performs the startup scan over the usb
// subsystem. Devices without their own idVendor attribute (interface
// nodes, hubs' child interfaces) are skipped.
func New() (*Context, error) {
	return newContext(udev.NewClient())
}

func newContext(client udev.Client) (*Context, error) {
	c := &Context{
		client: client,
		events: stream.NewBroadcast[Event](),
	}

	paths, err := client.Enumerate(Subsystem)
	if err != nil {
		return nil, fmt.Errorf("usbtrack: enumerate: %w", err)
	}
	for _, path := range paths {
		c.addDevice(path)
	}

	return c, nil
}

// Close shuts the event broadcast down, closing every subscriber channel.
func (c *Context) Close() {
	c.events.Close()
}

// addDevice registers a device, returning its freshly issued Id. It
// reports false when the syspath no longer resolves or the device lacks
// its own idVendor attribute; only genuine USB device nodes are tracked.
func (c *Context) addDevice(syspath string) (Id, bool) {
	dev, err := c.client.DeviceFromSyspath(syspath)
	if err != nil {
		klog.V(4).Infof("usbtrack: skipping %s: %v", syspath, err)
		return 0, false
	}
	if dev.SysAttr(attrVendorID) == "" {
		klog.V(5).Infof("usbtrack: skipping %s: no idVendor", syspath)
		return 0, false
	}

	e := entry{syspath: syspath}
	e.vendorID, e.hasVendorID = lookupHex(dev, attrVendorID)
	e.productID, e.hasProductID = lookupHex(dev, attrProductID)

	c.mu.Lock()
	defer c.mu.Unlock()
	id := Id(len(c.table))
	c.table = append(c.table, e)
	klog.V(4).Infof("usbtrack: registered %s as id %d", syspath, id)
	return id, true
}

// removeDevice tombstones the first connected entry matching the syspath
// and returns its Id. Unknown or duplicate removals report false. An
// empty syspath never matches; tombstones carry an empty syspath and
// must not resurface as removals.
func (c *Context) removeDevice(syspath string) (Id, bool) {
	if syspath == "" {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.table {
		if c.table[i].syspath == syspath {
			c.table[i].syspath = ""
			klog.V(4).Infof("usbtrack: id %d disconnected (%s)", i, syspath)
			return Id(i), true
		}
	}
	return 0, false
}

// findDevice looks an Id up by syspath without mutating the table. Change
// events will need this once they are surfaced.
func (c *Context) findDevice(syspath string) (Id, bool) {
	if syspath == "" {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.table {
		if c.table[i].syspath == syspath {
			return Id(i), true
		}
	}
	return 0, false
}

func (c *Context) tombstone(id Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) < len(c.table) {
		c.table[id].syspath = ""
	}
}

// IsConnected reports whether the id was issued and its device is still
// plugged in.
func (c *Context) IsConnected(id Id) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(id) < len(c.table) && c.table[id].syspath != ""
}

// VendorID returns the vendor ID cached when the device was first seen.
// ok is false when the id was never issued or no vendor ID could be
// resolved at add time; the cache is never refreshed afterwards.
func (c *Context) VendorID(id Id) (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) >= len(c.table) {
		return 0, false
	}
	e := c.table[id]
	return e.vendorID, e.hasVendorID
}

// ProductID returns the product ID cached when the device was first seen.
func (c *Context) ProductID(id Id) (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) >= len(c.table) {
		return 0, false
	}
	e := c.table[id]
	return e.productID, e.hasProductID
}

// ManufacturerString resolves the manufacturer descriptor string live
// from sysfs. Unlike the ID caches this re-queries on every call.
func (c *Context) ManufacturerString(id Id) (string, error) {
	return c.lookupString(id, attrManufacturer)
}

// ProductString resolves the product descriptor string live from sysfs.
func (c *Context) ProductString(id Id) (string, error) {
	return c.lookupString(id, attrProduct)
}

// lookupString re-resolves an attribute through the ancestor walk. A
// device that no longer opens, or no longer carries the attribute
// anywhere on its chain, is treated as gone: the entry is tombstoned and
// ErrNotConnected returned.
func (c *Context) lookupString(id Id, name string) (string, error) {
	c.mu.Lock()
	if int(id) >= len(c.table) {
		c.mu.Unlock()
		return "", ErrInvalidID
	}
	syspath := c.table[id].syspath
	c.mu.Unlock()
	if syspath == "" {
		return "", ErrNotConnected
	}

	dev, err := c.client.DeviceFromSyspath(syspath)
	if err != nil {
		c.tombstone(id)
		return "", ErrNotConnected
	}
	v, ok := lookupAttr(dev, name)
	if !ok {
		c.tombstone(id)
		return "", ErrNotConnected
	}
	return v, nil
}

// Devices returns every Id ever issued, in issuance order.
func (c *Context) Devices() []Id {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]Id, len(c.table))
	for i := range c.table {
		ids[i] = Id(i)
	}
	return ids
}

// ConnectedDevices returns the Ids of currently plugged-in devices, in
// issuance order.
func (c *Context) ConnectedDevices() []Id {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]Id, 0, len(c.table))
	for i := range c.table {
		if c.table[i].syspath != "" {
			ids = append(ids, Id(i))
		}
	}
	return ids
}

// Subscribe returns a channel receiving every event emitted while Serve
// runs, and a cancel function that unsubscribes and closes the channel.
func (c *Context) Subscribe(buf int) (<-chan Event, func()) {
	return c.SubscribeFiltered(buf, stream.Any[Event]())
}

// SubscribeFiltered is Subscribe restricted to events the keep function
// accepts; rejected events are dropped before they reach the channel.
func (c *Context) SubscribeFiltered(buf int, keep func(Event) bool) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	cancel := c.events.Subscribe(stream.FilterSink(stream.SinkFromChan(ch), keep))
	return ch, func() { cancel() }
}

// Serve opens a monitor and pumps its events to all subscribers until
// the feed ends, a fatal monitor error occurs, or ctx is done. Events are
// delivered in feed order.
func (c *Context) Serve(ctx context.Context) error {
	mon, err := c.Monitor()
	if err != nil {
		return err
	}
	defer mon.Close()

	for {
		ev, err := mon.Next(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
		if err := c.events.Submit(ev); err != nil {
			klog.Errorf("usbtrack: dropped event for slow subscriber: %v", err)
		}
	}
}
