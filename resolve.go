package endpoint

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// ErrorKind classifies a resolution failure.
type ErrorKind int

const (
	// KindMalformedSpec indicates the endpoint spec itself was unusable,
	// for example a missing port with no default supplied.
	KindMalformedSpec ErrorKind = iota
	// KindSystemError indicates the lookup failed below the resolver, at
	// the OS or transport level.
	KindSystemError
	// KindResolverError indicates the resolver answered but reported a
	// name-level failure such as NXDOMAIN.
	KindResolverError
	// KindNoAddresses indicates the resolver reported success but produced
	// no usable candidates.
	KindNoAddresses
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedSpec:
		return "malformed spec"
	case KindSystemError:
		return "system error"
	case KindResolverError:
		return "resolver error"
	case KindNoAddresses:
		return "no addresses"
	}

	return "unknown"
}

// ResolveError is the failure type returned by Resolve. The Kind field
// lets callers distinguish bad input from resolution failures without
// parsing log output.
type ResolveError struct {
	Kind ErrorKind
	Spec string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error resolving %s: %v", e.Spec, e.Err)
	}

	return fmt.Sprintf("error resolving %s: %s", e.Spec, e.Kind)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ResolverConfig holds the resolver configuration.
type ResolverConfig struct {
	// Nameservers is a list of nameserver addresses to use. Each entry
	// must be an IP literal, optionally with a port (53 by default).
	// If empty, lookups are delegated to the bound network's own resolver.
	Nameservers []string
	// SearchDomains is a list of search domains to use.
	SearchDomains []string
	// Options is a list of resolver options to use.
	// Supported options:
	// - ndots:<n> sets the number of dots that must appear in a name before an initial absolute query is made.
	//   The default is 1.
	Options []string
	// Logger receives diagnostic output. Defaults to the logrus standard
	// logger.
	Logger logrus.FieldLogger
}

// ResolveOptions control how a single endpoint spec is resolved.
type ResolveOptions struct {
	// NumericOnly treats the host as a literal address; no DNS query is
	// performed.
	NumericOnly bool
	// Passive resolves for listening rather than connecting: an empty
	// host selects wildcard bind addresses instead of loopback.
	Passive bool
	// DefaultPort is used when the spec carries no port of its own.
	DefaultPort string
}

// Resolver resolves endpoint specs against a Network. A single Resolver
// is typically constructed at startup and shared by reference; see
// InitDefault for the process-wide instance.
type Resolver struct {
	network Network
	conf    ResolverConfig
	log     logrus.FieldLogger
}

// NewResolver constructs a resolver bound to the given network. A nil
// network binds to the host network stack, and a nil configuration uses
// the system default resolver.
func NewResolver(network Network, conf *ResolverConfig) (*Resolver, error) {
	if network == nil {
		network = Host()
	}
	if conf == nil {
		conf = &ResolverConfig{}
	}

	for _, ns := range conf.Nameservers {
		host := ns
		if h, _, err := net.SplitHostPort(ns); err == nil {
			host = h
		}
		if _, err := netip.ParseAddr(host); err != nil {
			return nil, fmt.Errorf("invalid nameserver %s: %w", ns, err)
		}
	}

	log := conf.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Resolver{network: network, conf: *conf, log: log}, nil
}

// Resolve parses spec in HOST[:PORT] form and returns resolved endpoint
// candidates in resolver order.
//
// IPv6 literals carrying a port must use bracket notation ("[::1]:8080",
// matching the formatter's output); an unbracketed spec with more than
// one colon is taken as a bare IPv6 host and never split. A spec without
// a port resolves with opts.DefaultPort, or fails when none is supplied.
// Ports must be decimal numeric.
//
// All failures are returned as *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, spec string, opts *ResolveOptions) ([]Endpoint, error) {
	if opts == nil {
		opts = &ResolveOptions{}
	}

	host, portStr, err := splitSpec(spec, opts.DefaultPort)
	if err != nil {
		r.log.Debugf("error in address %s: %v", spec, err)
		return nil, &ResolveError{Kind: KindMalformedSpec, Spec: spec, Err: err}
	}

	port, err := parsePort(portStr)
	if err != nil {
		r.log.Debugf("error in address %s: %v", spec, err)
		return nil, &ResolveError{Kind: KindMalformedSpec, Spec: spec, Err: err}
	}

	// An empty host selects wildcard or loopback candidates depending on
	// whether the endpoint is for listening or connecting.
	if host == "" {
		return unspecifiedEndpoints(opts.Passive, port), nil
	}

	// Literal addresses resolve locally, whether or not NumericOnly was
	// requested.
	if addr, err := netip.ParseAddr(host); err == nil {
		return []Endpoint{fromAddrPort(addr, port)}, nil
	} else if opts.NumericOnly {
		r.log.Debugf("error in address %s: %v", spec, err)
		return nil, &ResolveError{Kind: KindMalformedSpec, Spec: spec, Err: err}
	}

	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		kind := classifyLookupError(err)
		if kind == KindSystemError {
			r.log.Warnf("error resolving %s: %v [%s]", spec, err, kind)
		} else {
			r.log.Warnf("error resolving %s: %v", spec, err)
		}
		return nil, &ResolveError{Kind: kind, Spec: spec, Err: err}
	}

	endpoints := make([]Endpoint, 0, len(addrs))
	for _, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		endpoints = append(endpoints, fromAddrPort(addr, port))
	}

	if len(endpoints) == 0 {
		r.log.Warnf("address resolution failed for %s", spec)
		return nil, &ResolveError{Kind: KindNoAddresses, Spec: spec, Err: errors.New("no addresses found")}
	}

	return endpoints, nil
}

// LookupHost looks up the given host using the resolver's configured
// nameservers, trying search domains first for names with fewer dots than
// the ndots option. With no nameservers configured, the lookup is
// delegated to the bound network.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if len(r.conf.Nameservers) == 0 {
		return r.network.LookupHost(ctx, host)
	}

	resolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			ns := r.conf.Nameservers[rand.IntN(len(r.conf.Nameservers))]

			// If the nameserver does not have a port, add the default DNS port.
			if _, _, err := net.SplitHostPort(ns); err != nil {
				ns = net.JoinHostPort(ns, "53")
			}

			return r.network.DialContext(ctx, network, ns)
		},
	}

	ndots := 1
	for _, opt := range r.conf.Options {
		if strings.HasPrefix(opt, "ndots:") {
			if n, err := strconv.Atoi(opt[len("ndots:"):]); err == nil && n >= 0 {
				ndots = n
			}
		}
	}

	// Try search domains first.
	if strings.Count(host, ".") < ndots && !dns.IsFqdn(host) {
		for _, domain := range r.conf.SearchDomains {
			addrs, err := resolver.LookupHost(ctx, host+"."+domain)
			if err == nil && len(addrs) > 0 {
				return addrs, nil
			}
		}
	}

	return resolver.LookupHost(ctx, host)
}

// splitSpec separates an endpoint spec into host and port strings,
// falling back to defaultPort when the spec carries no port.
func splitSpec(spec, defaultPort string) (host, port string, err error) {
	switch {
	case strings.HasPrefix(spec, "["):
		end := strings.Index(spec, "]")
		if end < 0 {
			return "", "", errors.New("missing ']' in address")
		}

		host = spec[1:end]
		switch rest := spec[end+1:]; {
		case rest == "":
			port = defaultPort
		case strings.HasPrefix(rest, ":"):
			port = rest[1:]
		default:
			return "", "", errors.New("unexpected characters after ']'")
		}
	case strings.Count(spec, ":") == 1:
		i := strings.IndexByte(spec, ':')
		host, port = spec[:i], spec[i+1:]
	case strings.Contains(spec, ":"):
		// More than one colon and no brackets: a bare IPv6 literal.
		host, port = spec, defaultPort
	default:
		host, port = spec, defaultPort
	}

	if port == "" {
		return "", "", errors.New("port required")
	}

	return host, port, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: decimal numeric port required", s)
	}

	return uint16(n), nil
}

// unspecifiedEndpoints mirrors getaddrinfo's handling of an empty host:
// wildcard addresses for passive (listening) use, loopback for connecting.
func unspecifiedEndpoints(passive bool, port uint16) []Endpoint {
	if passive {
		return []Endpoint{
			fromAddrPort(netip.IPv4Unspecified(), port),
			fromAddrPort(netip.IPv6Unspecified(), port),
		}
	}

	return []Endpoint{
		fromAddrPort(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port),
		fromAddrPort(netip.IPv6Loopback(), port),
	}
}

// classifyLookupError separates failures of the lookup machinery itself
// from answers the resolver gave. Timeouts, canceled contexts, and
// non-DNS errors (dial failures) count as system errors; everything the
// resolver reported, such as NXDOMAIN or a misbehaving server, counts as
// a resolver error.
func classifyLookupError(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindSystemError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindSystemError
		}
		return KindResolverError
	}

	return KindSystemError
}
