// Package validation screens route-lookup destinations before they reach a
// device. Only globally routable unicast addresses and prefixes are allowed;
// anything else is rejected up front so devices never see junk input.
package validation

import (
	"fmt"
	"net/netip"
	"strings"
)

// ValidateDestination accepts an IPv4/IPv6 address or CIDR prefix and
// rejects everything a public looking glass has no business querying:
// private, loopback, link-local, multicast, and unspecified space.
func ValidateDestination(dest string) error {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return fmt.Errorf("destination is empty")
	}

	var addr netip.Addr
	if strings.Contains(dest, "/") {
		prefix, err := netip.ParsePrefix(dest)
		if err != nil {
			return fmt.Errorf("invalid prefix %q: %w", dest, err)
		}
		addr = prefix.Addr()
	} else {
		var err error
		addr, err = netip.ParseAddr(dest)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", dest, err)
		}
	}

	switch {
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified address %s is not routable", addr)
	case addr.IsLoopback():
		return fmt.Errorf("loopback address %s is not routable", addr)
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s is not routable", addr)
	case addr.IsMulticast():
		return fmt.Errorf("multicast address %s is not routable", addr)
	case addr.IsPrivate():
		return fmt.Errorf("private address %s is not routable", addr)
	}
	return nil
}

// AddressFamily reports "IPv4" or "IPv6" for a destination accepted by
// ValidateDestination, and "unknown" for anything unparsable.
func AddressFamily(dest string) string {
	dest = strings.TrimSpace(dest)
	var addr netip.Addr
	if strings.Contains(dest, "/") {
		prefix, err := netip.ParsePrefix(dest)
		if err != nil {
			return "unknown"
		}
		addr = prefix.Addr()
	} else {
		var err error
		addr, err = netip.ParseAddr(dest)
		if err != nil {
			return "unknown"
		}
	}
	if addr.Is4() || addr.Is4In6() {
		return "IPv4"
	}
	return "IPv6"
}
