// Package netlink checks that the host's network link is associated and
// addressed before the broker is dialled.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Association errors.
var (
	ErrNoLink    = errors.New("network interface not found")
	ErrLinkDown  = errors.New("network interface is down")
	ErrNoAddress = errors.New("no usable address on network interface")
)

// Link checks one named interface, or any non-loopback interface when no
// name is given.
type Link struct {
	name string

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// New returns a Link for the named interface. An empty name accepts any
// non-loopback interface.
func New(name string) *Link {
	return &Link{
		name:       name,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Name returns the configured interface name, or "" for any.
func (l *Link) Name() string { return l.name }

// Associate returns nil when the link is up and holds a global unicast
// address.
func (l *Link) Associate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ifaces, err := l.interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	errFound := ErrNoLink
	for _, iface := range ifaces {
		if l.name != "" && iface.Name != l.name {
			continue
		}
		if l.name == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			errFound = fmt.Errorf("%s: %w", iface.Name, ErrLinkDown)
			continue
		}

		addrs, err := l.addrs(iface)
		if err != nil {
			errFound = fmt.Errorf("%s: addresses: %w", iface.Name, err)
			continue
		}
		if hasUsableAddr(addrs) {
			return nil
		}
		errFound = fmt.Errorf("%s: %w", iface.Name, ErrNoAddress)
	}

	if l.name != "" && errors.Is(errFound, ErrNoLink) {
		return fmt.Errorf("%s: %w", l.name, ErrNoLink)
	}
	return errFound
}

func hasUsableAddr(addrs []net.Addr) bool {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
