package udev

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"k8s.io/klog/v2"
)

func sysfsDevicesDir(subsystem string) string {
	return filepath.Join("/sys/bus", subsystem, "devices")
}

// sysfsSocket is a MonitorSocket that watches a sysfs devices directory
// with fsnotify. It is the fallback for hosts where the netlink uevent
// socket cannot be opened (typically containers without NET_ADMIN).
//
// Entries under /sys/bus/<subsystem>/devices are symlinks into the device
// tree; a remove event arrives after the link is gone, so resolved
// syspaths are remembered from open time and from create events.
type sysfsSocket struct {
	watcher *fsnotify.Watcher
	known   map[string]string // entry name -> resolved syspath

	pending []RawEvent
	err     error
	eof     bool
}

// OpenSysfsMonitor opens a fallback monitor over the given devices
// directory.
func OpenSysfsMonitor(dir string) (MonitorSocket, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		klog.Errorf("udev: failed to create sysfs watcher: %v", err)
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		klog.Errorf("udev: failed to watch %s: %v", dir, err)
		watcher.Close()
		return nil, err
	}

	s := &sysfsSocket{
		watcher: watcher,
		known:   make(map[string]string),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if syspath, err := filepath.EvalSymlinks(filepath.Join(dir, name)); err == nil {
			s.known[name] = syspath
		}
	}

	return s, nil
}

func (s *sysfsSocket) Next() (RawEvent, bool, error) {
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
		case ev, ok := <-s.watcher.Events:
			if !ok {
				s.eof = true
				continue
			}
			s.translate(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				s.eof = true
				continue
			}
			s.err = err
		default:
			return RawEvent{}, false, nil
		}
	}
}

func (s *sysfsSocket) Ready(ctx context.Context) error {
	if len(s.pending) > 0 || s.err != nil || s.eof {
		return nil
	}
	select {
	case ev, ok := <-s.watcher.Events:
		if !ok {
			s.eof = true
			return nil
		}
		s.translate(ev)
		return nil
	case err, ok := <-s.watcher.Errors:
		if !ok {
			s.eof = true
			return nil
		}
		s.err = err
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sysfsSocket) translate(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	switch {
	case ev.Op&fsnotify.Create != 0:
		syspath, err := filepath.EvalSymlinks(ev.Name)
		if err != nil {
			// Entry vanished again before we could resolve it.
			klog.V(5).Infof("udev: cannot resolve new entry %s: %v", ev.Name, err)
			return
		}
		s.known[name] = syspath
		klog.V(5).Infof("udev: sysfs add of %s (%s)", name, syspath)
		s.pending = append(s.pending, RawEvent{Syspath: syspath, Action: ActionAdd})
	case ev.Op&fsnotify.Remove != 0:
		syspath, found := s.known[name]
		if !found {
			return
		}
		delete(s.known, name)
		klog.V(5).Infof("udev: sysfs remove of %s (%s)", name, syspath)
		s.pending = append(s.pending, RawEvent{Syspath: syspath, Action: ActionRemove})
	}
}

func (s *sysfsSocket) Close() {
	s.watcher.Close()
}
