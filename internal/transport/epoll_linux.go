//go:build linux

package transport

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Epoll is the one concrete Notifier this module ships, for the sample
// dispatcher in cmd/dhcp4c. The Connection itself only ever sees the
// Notifier interface.
type Epoll struct {
	fd int
}

// NewEpoll creates an epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("transport: epoll_create1: %w", err)
	}
	return &Epoll{fd: fd}, nil
}

// Add implements Notifier.
func (e *Epoll) Add(fd int, tag uint64) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	binaryPutTag(&ev, tag)
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Remove implements Notifier.
func (e *Epoll) Remove(fd int) error {
	err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait blocks until at least one registered descriptor is readable, or
// timeout elapses (0 waits forever), returning the tags supplied at Add
// time for each descriptor that fired.
func (e *Epoll) Wait(timeout time.Duration) ([]uint64, error) {
	events := make([]unix.EpollEvent, 16)
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(e.fd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: epoll_wait: %w", err)
	}
	tags := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		tags = append(tags, binaryGetTag(&events[i]))
	}
	return tags, nil
}

// Close releases the epoll instance.
func (e *Epoll) Close() error {
	return unix.Close(e.fd)
}

// binaryPutTag/binaryGetTag carry the caller's tag in the epoll_event's Fd
// field, in place of the descriptor; Wait reports tags only, never the
// descriptor that fired.
func binaryPutTag(ev *unix.EpollEvent, tag uint64) {
	// unix.EpollEvent.Fd is an int32; the tag namespace this module uses
	// (§6: "a single constant meaning this event is for the DHCP
	// connection") always fits in 32 bits, so it is carried directly in Fd.
	ev.Fd = int32(tag)
}

func binaryGetTag(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd))
}
