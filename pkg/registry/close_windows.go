//go:build windows

package registry

import "golang.org/x/sys/windows"

func closeFD(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}
