package udev_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/usbtrack/usbtrack/internal/udev"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// awaitEvent pumps a socket until it yields an event, matching how the
// monitor loop alternates Next and Ready.
func awaitEvent(sock udev.MonitorSocket) udev.RawEvent {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok, err := sock.Next()
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		if ok {
			return ev
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_ = sock.Ready(waitCtx)
		cancel()
	}
	Fail("timed out waiting for a sysfs event")
	return udev.RawEvent{}
}

var _ = Describe("Sysfs fallback monitor", func() {
	var dir string
	var sock udev.MonitorSocket

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if sock != nil {
			sock.Close()
			sock = nil
		}
	})

	It("should report nothing pending on a quiet directory", func() {
		var err error
		sock, err = udev.OpenSysfsMonitor(dir)
		Expect(err).NotTo(HaveOccurred())

		_, ok, err := sock.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should translate entry creation into an add event", func() {
		var err error
		sock, err = udev.OpenSysfsMonitor(dir)
		Expect(err).NotTo(HaveOccurred())

		entry := filepath.Join(dir, "1-1")
		Expect(os.WriteFile(entry, nil, 0o644)).To(Succeed())
		expected, err := filepath.EvalSymlinks(entry)
		Expect(err).NotTo(HaveOccurred())

		ev := awaitEvent(sock)
		Expect(ev.Action).To(Equal(udev.ActionAdd))
		Expect(ev.Syspath).To(Equal(expected))
	})

	It("should correlate removal of an entry seen at open time", func() {
		entry := filepath.Join(dir, "2-1")
		Expect(os.WriteFile(entry, nil, 0o644)).To(Succeed())
		expected, err := filepath.EvalSymlinks(entry)
		Expect(err).NotTo(HaveOccurred())

		sock, err = udev.OpenSysfsMonitor(dir)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(entry)).To(Succeed())

		ev := awaitEvent(sock)
		Expect(ev.Action).To(Equal(udev.ActionRemove))
		Expect(ev.Syspath).To(Equal(expected))
	})

	It("should pair adds and removes within one session", func() {
		var err error
		sock, err = udev.OpenSysfsMonitor(dir)
		Expect(err).NotTo(HaveOccurred())

		entry := filepath.Join(dir, "3-2")
		Expect(os.WriteFile(entry, nil, 0o644)).To(Succeed())

		added := awaitEvent(sock)
		Expect(added.Action).To(Equal(udev.ActionAdd))

		Expect(os.Remove(entry)).To(Succeed())

		removed := awaitEvent(sock)
		Expect(removed.Action).To(Equal(udev.ActionRemove))
		Expect(removed.Syspath).To(Equal(added.Syspath))
	})

	It("should fail to open a missing directory", func() {
		_, err := udev.OpenSysfsMonitor(filepath.Join(dir, "does-not-exist"))
		Expect(err).To(HaveOccurred())
	})

	It("should end the feed once closed", func() {
		var err error
		sock, err = udev.OpenSysfsMonitor(dir)
		Expect(err).NotTo(HaveOccurred())

		sock.Close()

		Eventually(func() error {
			_, _, err := sock.Next()
			return err
		}).Should(HaveOccurred())
		sock = nil
	})
})
