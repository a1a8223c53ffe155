//go:build unix

package pipe

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// waitReadable blocks in poll(2) until f has input, hangs up, or timeout
// elapses. Hang-ups count as readable so the following read observes EOF.
func waitReadable(f *os.File, timeout time.Duration) (bool, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}

	var (
		ready   bool
		pollErr error
	)
	// Control keeps the descriptor in whatever mode the runtime chose,
	// unlike Fd which would switch it to blocking.
	err = rc.Control(func(fd uintptr) {
		ready, pollErr = pollIn(int32(fd), time.Now().Add(timeout))
	})
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return ready, pollErr
}

func pollIn(fd int32, deadline time.Time) (bool, error) {
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		// Round up so a sub-millisecond remainder still waits.
		ms := int((remaining + time.Millisecond - 1) / time.Millisecond)

		pollDescriptors := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("poll: %w", err)
		}
		if count == 0 {
			return false, nil
		}

		revents := pollDescriptors[0].Revents
		if revents&unix.POLLNVAL != 0 {
			return false, fmt.Errorf("poll: invalid descriptor %d", fd)
		}
		return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}
