package relayer

import (
	"fmt"
	"net"
	"strings"

	"github.com/coreos/go-systemd/activation"
)

// statusListener binds addr, or picks the matching systemd socket when addr has the "sd:" prefix. Socket activation
// keeps the port open across restarts.
func statusListener(addr string) (net.Listener, error) {
	if !strings.HasPrefix(addr, "sd:") {
		return net.Listen("tcp", addr)
	}

	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve listeners: %v", err)
	}

	want := addr[3:]
	all := make([]string, 0, len(listeners))
	for _, l := range listeners {
		if l == nil {
			continue
		}
		if l.Addr().String() == want {
			return l, nil
		}
		all = append(all, l.Addr().String())
	}
	return nil, fmt.Errorf("no systemd listener for %s, got: %s", want, strings.Join(all, ","))
}
