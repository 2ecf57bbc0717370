//go:build !linux

package poller

import "fmt"

func newEpoll() (Poller, error) {
	return nil, fmt.Errorf("epoll poller is only available on linux")
}
