// Package usbtrack provides a stable, identifier-based view of the USB
// devices on a host.
//
// A Context scans the usb subsystem once at creation and assigns every
// device a dense, monotonically increasing Id. Ids are never reused: when
// a device is unplugged its table entry is tombstoned and the Id keeps
// reporting the metadata cached at add time. A Monitor turns the raw
// uevent feed into ordered Added/Removed events over the same Id space.
package usbtrack

import (
	"errors"
)

// Subsystem is the device subsystem this package tracks.
const Subsystem = "usb"

const (
	attrVendorID     = "idVendor"
	attrProductID    = "idProduct"
	attrManufacturer = "manufacturer"
	attrProduct      = "product"
)

var (
	// ErrInvalidID is returned for an identifier that was never issued.
	ErrInvalidID = errors.New("usbtrack: invalid device id")
	// ErrNotConnected is returned for an identifier whose device is
	// currently absent, including one that disappeared during the call.
	ErrNotConnected = errors.New("usbtrack: device not connected")
)

// Id is a stable handle to a USB device, issued once per physical device
// observed and valid for the lifetime of the Context even after the
// device disconnects.
type Id uint32

// Event is a hotplug notification. The concrete types are Added and
// Removed.
type Event interface {
	hotplugEvent()
}

// Added reports that a USB device was plugged in.
type Added struct {
	Device Id
}

func (Added) hotplugEvent() {}

// Removed reports that a USB device was unplugged.
type Removed struct {
	Device Id
}

func (Removed) hotplugEvent() {}
