package udev_test

import (
	"github.com/usbtrack/usbtrack/internal/udev"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAction", func() {
	It("should recognize the tracked uevent actions", func() {
		Expect(udev.ParseAction("add")).To(Equal(udev.ActionAdd))
		Expect(udev.ParseAction("remove")).To(Equal(udev.ActionRemove))
		Expect(udev.ParseAction("change")).To(Equal(udev.ActionChange))
	})

	It("should classify everything else as unknown", func() {
		Expect(udev.ParseAction("bind")).To(Equal(udev.ActionUnknown))
		Expect(udev.ParseAction("unbind")).To(Equal(udev.ActionUnknown))
		Expect(udev.ParseAction("move")).To(Equal(udev.ActionUnknown))
		Expect(udev.ParseAction("")).To(Equal(udev.ActionUnknown))
	})

	It("should round-trip through String", func() {
		for _, action := range []udev.Action{udev.ActionAdd, udev.ActionRemove, udev.ActionChange} {
			Expect(udev.ParseAction(action.String())).To(Equal(action))
		}
		Expect(udev.ActionUnknown.String()).To(Equal("unknown"))
	})
})
