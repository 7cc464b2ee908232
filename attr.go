package usbtrack

import (
	"strconv"

	"github.com/usbtrack/usbtrack/internal/udev"
)

// lookupAttr resolves a sysfs attribute on the device or the nearest
// ancestor carrying it. USB interface nodes do not hold idVendor,
// idProduct or the descriptor strings themselves; those live on the
// owning device one or more levels up the tree.
func lookupAttr(dev udev.Device, name string) (string, bool) {
	for d := dev; d != nil; d = d.Parent() {
		if v := d.SysAttr(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// lookupHex resolves an attribute holding a 16-bit hex value, such as
// idVendor. Malformed values count as absent.
func lookupHex(dev udev.Device, name string) (uint16, bool) {
	v, ok := lookupAttr(dev, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
