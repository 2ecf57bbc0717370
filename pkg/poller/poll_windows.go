//go:build windows

package poller

import "fmt"

func newPoll() (Poller, error) {
	return nil, fmt.Errorf("poll poller is not available on windows, use select")
}
