package poller

import "golang.org/x/sys/unix"

func sysSelect(nfd int, r, w, e *unix.FdSet, tv *unix.Timeval) error {
	_, err := unix.Select(nfd, r, w, e, tv)
	return err
}
