package endpoint_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stelnet/endpoint"
)

const (
	localDNSServer = "127.0.0.1:5300"
	resolvedIP     = "93.184.216.34"
)

func TestResolveSpec(t *testing.T) {
	r, err := endpoint.NewResolver(endpoint.Host(), nil)
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Numeric host", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "1.2.3.4:80", &endpoint.ResolveOptions{NumericOnly: true})
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, endpoint.FamilyIPv4, candidates[0].Family)
		assert.Equal(t, []byte{1, 2, 3, 4}, candidates[0].Addr.AsSlice())
		assert.Equal(t, "1.2.3.4:80", candidates[0].String())
	})

	t.Run("Numeric only rejects names", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "example.com:80", &endpoint.ResolveOptions{NumericOnly: true})
		require.Error(t, err)
		assert.Nil(t, candidates)

		var resErr *endpoint.ResolveError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, endpoint.KindMalformedSpec, resErr.Kind)
	})

	t.Run("Missing port", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "1.2.3.4", nil)
		require.Error(t, err)
		assert.Nil(t, candidates)

		var resErr *endpoint.ResolveError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, endpoint.KindMalformedSpec, resErr.Kind)
	})

	t.Run("Default port", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "1.2.3.4", &endpoint.ResolveOptions{DefaultPort: "443"})
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, uint16(443), candidates[0].Port)
	})

	t.Run("Non-numeric port", func(t *testing.T) {
		_, err := r.Resolve(ctx, "1.2.3.4:http", nil)
		require.Error(t, err)

		var resErr *endpoint.ResolveError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, endpoint.KindMalformedSpec, resErr.Kind)
	})

	t.Run("Bracketed IPv6 literal", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "[::1]:8080", &endpoint.ResolveOptions{NumericOnly: true})
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, endpoint.FamilyIPv6, candidates[0].Family)
		assert.Equal(t, "[::1]:8080", candidates[0].String())
	})

	t.Run("Unbracketed IPv6 literal is never split", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "2001:db8::1", &endpoint.ResolveOptions{NumericOnly: true, DefaultPort: "53"})
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, "[2001:db8::1]:53", candidates[0].String())
	})

	t.Run("Passive empty host selects wildcard", func(t *testing.T) {
		passive, err := r.Resolve(ctx, ":9000", &endpoint.ResolveOptions{Passive: true})
		require.NoError(t, err)
		require.NotEmpty(t, passive)
		assert.Equal(t, "0.0.0.0:9000", passive[0].String())

		connecting, err := r.Resolve(ctx, ":9000", nil)
		require.NoError(t, err)
		require.NotEmpty(t, connecting)
		assert.Equal(t, "127.0.0.1:9000", connecting[0].String())

		assert.NotEqual(t, passive[0], connecting[0])
	})
}

func TestResolveLookup(t *testing.T) {
	server := startDNSServer(t, endpoint.Loopback(), localDNSServer, map[string]string{
		"example.com.": resolvedIP,
	})
	require.NotNil(t, server)

	r, err := endpoint.NewResolver(endpoint.Loopback(), &endpoint.ResolverConfig{
		Nameservers: []string{localDNSServer},
	})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Single A record", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "example.com:443", nil)
		require.NoError(t, err)

		require.Len(t, candidates, 1)
		assert.Equal(t, "93.184.216.34:443", candidates[0].String())
	})

	t.Run("Name not found", func(t *testing.T) {
		candidates, err := r.Resolve(ctx, "nonexistent.invalid:80", nil)
		require.Error(t, err)
		assert.Nil(t, candidates)

		var resErr *endpoint.ResolveError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, endpoint.KindResolverError, resErr.Kind)
	})
}

func TestResolverSearchDomains(t *testing.T) {
	server := startDNSServer(t, endpoint.Loopback(), localDNSServer, map[string]string{
		"example.local.": "10.0.0.1",
	})
	require.NotNil(t, server)

	r, err := endpoint.NewResolver(endpoint.Loopback(), &endpoint.ResolverConfig{
		Nameservers:   []string{localDNSServer},
		SearchDomains: []string{"local"},
		Options:       []string{"ndots:1"},
	})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Absolute query", func(t *testing.T) {
		addrs, err := r.LookupHost(ctx, "example.local")
		require.NoError(t, err)

		assert.Contains(t, addrs, "10.0.0.1")
	})

	t.Run("Relative query", func(t *testing.T) {
		addrs, err := r.LookupHost(ctx, "example")
		require.NoError(t, err)

		assert.Contains(t, addrs, "10.0.0.1")
	})

	t.Run("Not found", func(t *testing.T) {
		addrs, err := r.LookupHost(ctx, "notfound")
		require.Error(t, err)

		assert.Empty(t, addrs)
	})
}

func TestNewResolverRejectsBadNameserver(t *testing.T) {
	_, err := endpoint.NewResolver(endpoint.Host(), &endpoint.ResolverConfig{
		Nameservers: []string{"not-an-ip"},
	})
	require.Error(t, err)
}

// startDNSServer runs a DNS server on the given network answering A queries
// from the records map (FQDN to IPv4 address). Unknown names get NXDOMAIN.
func startDNSServer(t *testing.T, n endpoint.Network, listenAddress string, records map[string]string) *dns.Server {
	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		for _, q := range req.Question {
			ip, ok := records[q.Name]
			if !ok {
				resp.SetRcode(req, dns.RcodeNameError)
				continue
			}
			if q.Qtype == dns.TypeA {
				resp.Answer = append(resp.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP(ip),
				})
			}
		}
		_ = w.WriteMsg(resp)
	})

	pc, err := n.ListenPacket("udp", listenAddress)
	require.NoError(t, err)

	server := &dns.Server{
		Net:        "udp",
		PacketConn: pc,
		Handler:    mux,
	}

	go func() {
		if err := server.ActivateAndServe(); err != nil {
			panic(fmt.Errorf("failed to start DNS server: %w", err))
		}
	}()

	t.Cleanup(func() {
		require.NoError(t, server.Shutdown())
	})

	// Allow time for the server to start
	time.Sleep(100 * time.Millisecond)

	return server
}

func TestResolveContextCanceled(t *testing.T) {
	server := startDNSServer(t, endpoint.Loopback(), localDNSServer, nil)
	require.NotNil(t, server)

	r, err := endpoint.NewResolver(endpoint.Loopback(), &endpoint.ResolverConfig{
		Nameservers: []string{localDNSServer},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Resolve(ctx, "example.com:443", nil)
	require.Error(t, err)

	// Cancellation is a failure of the lookup machinery, not an answer
	// from the resolver.
	var resErr *endpoint.ResolveError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, endpoint.KindSystemError, resErr.Kind)
}
