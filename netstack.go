package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

var _ Network = (*NetstackNetwork)(nil)

// NetstackNetwork is a Network backed by a userspace netstack rather than
// the host's network stack. Name resolution runs through an endpoint
// Resolver bound to this network, so nameserver traffic is carried over
// the netstack too.
type NetstackNetwork struct {
	stack    *stack.Stack
	nicID    tcpip.NICID
	resolver *Resolver
}

// Netstack returns a network that uses the provided netstack stack and
// NIC ID. The resolver configuration may be nil, in which case lookups
// use the system default resolver.
func Netstack(st *stack.Stack, nicID tcpip.NICID, conf *ResolverConfig) (*NetstackNetwork, error) {
	n := &NetstackNetwork{stack: st, nicID: nicID}

	resolver, err := NewResolver(n, conf)
	if err != nil {
		return nil, err
	}
	n.resolver = resolver

	return n, nil
}

func (n *NetstackNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	candidates, err := n.resolver.Resolve(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("could not resolve address %s: %w", address, err)
	}

	// Try each candidate until one connects.
	var firstErr error
	for _, candidate := range candidates {
		fa, pn := n.fullAddr(candidate)

		var conn net.Conn
		var err error
		switch network {
		case "tcp", "tcp4", "tcp6":
			conn, err = gonet.DialContextTCP(ctx, n.stack, fa, pn)
		case "udp", "udp4", "udp6":
			conn, err = gonet.DialUDP(n.stack, nil, &fa, pn)
		default:
			return nil, fmt.Errorf("unsupported network type: %s", network)
		}
		if err == nil {
			return conn, nil
		} else if firstErr == nil {
			firstErr = err
		}
	}

	return nil, fmt.Errorf("could not connect to any address: %w", firstErr)
}

func (n *NetstackNetwork) LookupHost(ctx context.Context, host string) ([]string, error) {
	// Without custom nameservers, fall back to the system default resolver
	// rather than recursing into our own lookup path.
	if len(n.resolver.conf.Nameservers) == 0 {
		return net.DefaultResolver.LookupHost(ctx, host)
	}

	return n.resolver.LookupHost(ctx, host)
}

func (n *NetstackNetwork) Listen(network, address string) (net.Listener, error) {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, fmt.Errorf("could not parse address %s: %w", address, err)
	}

	fa, pn := n.fullAddr(fromAddrPort(addrPort.Addr(), addrPort.Port()))

	lis, err := gonet.ListenTCP(n.stack, fa, pn)
	if err != nil {
		return nil, err
	}

	return &netstackListener{lis}, nil
}

func (n *NetstackNetwork) ListenPacket(network, address string) (net.PacketConn, error) {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, fmt.Errorf("could not parse address %s: %w", address, err)
	}

	fa, pn := n.fullAddr(fromAddrPort(addrPort.Addr(), addrPort.Port()))

	return gonet.DialUDP(n.stack, &fa, nil, pn)
}

func (n *NetstackNetwork) fullAddr(e Endpoint) (tcpip.FullAddress, tcpip.NetworkProtocolNumber) {
	protoNumber := ipv6.ProtocolNumber
	if e.Family == FamilyIPv4 {
		protoNumber = ipv4.ProtocolNumber
	}

	return tcpip.FullAddress{
		NIC:  n.nicID,
		Addr: tcpip.AddrFromSlice(e.Addr.AsSlice()),
		Port: e.Port,
	}, protoNumber
}

// netstackListener is a net.Listener that translates netstack errors to stdnet errors.
type netstackListener struct {
	net.Listener
}

func (l *netstackListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		if strings.Contains(err.Error(), (&tcpip.ErrInvalidEndpointState{}).String()) {
			return nil, net.ErrClosed
		}

		return nil, err
	}

	return conn, nil
}
