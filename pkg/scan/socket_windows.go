//go:build windows

package scan

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/windows"
)

// packetOverhead estimates wire bytes per probe: 14 ethernet + 20 IP +
// 20 TCP and no TCP options on windows.
const packetOverhead = 54

const sendBufBytes = 1000000

// dialNonblock creates a non-blocking IPv4 socket and initiates a connect.
// Winsock reports a pending non-blocking connect as WSAEWOULDBLOCK.
func dialNonblock(addr netip.Addr, port uint16) (int, error) {
	fd, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		if err == windows.WSAEMFILE {
			return -1, ErrFdExhausted
		}
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := windows.SetNonblock(fd, true); err != nil {
		windows.Closesocket(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}

	sa := &windows.SockaddrInet4{Port: int(port), Addr: addr.As4()}
	err = windows.Connect(fd, sa)
	switch err {
	case nil, windows.WSAEWOULDBLOCK, windows.WSAEINPROGRESS:
	case windows.WSAENETUNREACH:
		return int(fd), errUnreachable
	default:
		windows.Closesocket(fd)
		return -1, fmt.Errorf("connect %s:%d: %w", addr, port, err)
	}

	if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_SNDBUF, sendBufBytes); err != nil {
		return int(fd), nil
	}
	return int(fd), nil
}

// fdLimit is not discoverable on windows; the select backend cap bounds
// the socket budget instead
func fdLimit() (soft, hard uint64, ok bool) {
	return 0, 0, false
}
