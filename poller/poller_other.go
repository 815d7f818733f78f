//go:build !linux

package poller

import "errors"

func newPoller(kind Kind, capacity int) (Poller, error) {
	return nil, errors.New("poller: platform not supported (requires Linux)")
}
