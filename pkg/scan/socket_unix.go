//go:build unix

package scan

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// packetOverhead estimates wire bytes per probe: 14 ethernet + 20 IP +
// 20 TCP + 20 TCP options.
const packetOverhead = 74

// sendBufBytes is applied to every probe socket so a burst of connects is
// never throttled by a small default buffer.
const sendBufBytes = 1000000

// dialNonblock creates a non-blocking IPv4 socket and initiates a connect.
// The expected outcome is connect-pending (EINPROGRESS); the caller owns
// the returned descriptor on success and also when errUnreachable is
// returned, where the descriptor exists but no handshake is in flight.
func dialNonblock(addr netip.Addr, port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			return -1, ErrFdExhausted
		}
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	unix.CloseOnExec(fd)

	sa := &unix.SockaddrInet4{Port: int(port), Addr: addr.As4()}
	err = unix.Connect(fd, sa)
	switch err {
	case nil, unix.EINPROGRESS:
		// in-progress is the success path for a non-blocking connect
	case unix.ENETUNREACH:
		return fd, errUnreachable
	default:
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s:%d: %w", addr, port, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBufBytes); err != nil {
		// not fatal, the scan just runs with the default buffer
		return fd, nil
	}
	return fd, nil
}

// fdLimit reports the soft and hard open-file limits when discoverable
func fdLimit() (soft, hard uint64, ok bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, 0, false
	}
	return rl.Cur, rl.Max, true
}
