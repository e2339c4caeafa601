package endpoint

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// FormatNumeric converts raw address bytes of the given family to their
// canonical textual form without any name service interaction. The raw
// slice must be at least 4 bytes for FamilyIPv4 and 16 bytes for
// FamilyIPv6; passing a shorter slice is a caller bug and panics.
// Unsupported families return an error.
func FormatNumeric(family Family, raw []byte) (string, error) {
	switch family {
	case FamilyIPv4:
		if len(raw) < 4 {
			panic(fmt.Sprintf("endpoint: raw IPv4 address too short: %d bytes", len(raw)))
		}
		return netip.AddrFrom4([4]byte(raw[:4])).String(), nil
	case FamilyIPv6:
		if len(raw) < 16 {
			panic(fmt.Sprintf("endpoint: raw IPv6 address too short: %d bytes", len(raw)))
		}
		return netip.AddrFrom16([16]byte(raw[:16])).String(), nil
	}

	return "", fmt.Errorf("unsupported address family %d", family)
}

// ParseNumeric parses a literal numeric host into raw address bytes,
// constrained to the requested family. FamilyUnspec accepts either IP
// family. IPv4-mapped IPv6 literals unmap when FamilyIPv4 is requested.
// No DNS query is ever performed; an unparseable literal is reported at
// debug severity and returned as an error.
func ParseNumeric(family Family, text string) ([]byte, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil {
		logrus.Debugf("could not parse numeric host %s: %v", text, err)
		return nil, fmt.Errorf("could not parse numeric host %s: %w", text, err)
	}

	switch family {
	case FamilyIPv4:
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, fmt.Errorf("host %s is not an IPv4 address", text)
		}
	case FamilyIPv6:
		if addr.Is4() {
			return nil, fmt.Errorf("host %s is not an IPv6 address", text)
		}
	case FamilyUnspec:
	default:
		return nil, fmt.Errorf("unsupported address family %d", family)
	}

	return addr.AsSlice(), nil
}
