package endpoint

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSpec(t *testing.T) {
	for _, tt := range []struct {
		name        string
		spec        string
		defaultPort string
		host        string
		port        string
		wantErr     bool
	}{
		{name: "host and port", spec: "example.com:443", host: "example.com", port: "443"},
		{name: "host only with default", spec: "example.com", defaultPort: "80", host: "example.com", port: "80"},
		{name: "host only without default", spec: "example.com", wantErr: true},
		{name: "empty port after colon", spec: "example.com:", wantErr: true},
		{name: "bracketed IPv6 with port", spec: "[2001:db8::1]:443", host: "2001:db8::1", port: "443"},
		{name: "bracketed IPv6 with default", spec: "[2001:db8::1]", defaultPort: "53", host: "2001:db8::1", port: "53"},
		{name: "unterminated bracket", spec: "[2001:db8::1:443", wantErr: true},
		{name: "junk after bracket", spec: "[::1]x", wantErr: true},
		{name: "unbracketed IPv6 never splits", spec: "2001:db8::1", defaultPort: "53", host: "2001:db8::1", port: "53"},
		{name: "unbracketed IPv6 without default", spec: "2001:db8::1", wantErr: true},
		{name: "empty host", spec: ":8080", host: "", port: "8080"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := splitSpec(tt.spec, tt.defaultPort)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestParsePort(t *testing.T) {
	port, err := parsePort("443")
	require.NoError(t, err)
	assert.Equal(t, uint16(443), port)

	_, err = parsePort("https")
	require.Error(t, err)

	_, err = parsePort("65536")
	require.Error(t, err)

	_, err = parsePort("-1")
	require.Error(t, err)
}

func TestClassifyLookupError(t *testing.T) {
	assert.Equal(t, KindResolverError, classifyLookupError(&net.DNSError{
		Err:        "no such host",
		IsNotFound: true,
	}))

	assert.Equal(t, KindSystemError, classifyLookupError(&net.DNSError{
		Err:       "i/o timeout",
		IsTimeout: true,
	}))

	assert.Equal(t, KindSystemError, classifyLookupError(errors.New("connect: network is unreachable")))

	// net.DNSError wraps context errors since go1.23; cancellation counts
	// as a system error no matter how it is delivered.
	assert.Equal(t, KindSystemError, classifyLookupError(&net.DNSError{
		Err:       context.Canceled.Error(),
		UnwrapErr: context.Canceled,
	}))
	assert.Equal(t, KindSystemError, classifyLookupError(context.Canceled))
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "malformed spec", KindMalformedSpec.String())
	assert.Equal(t, "system error", KindSystemError.String())
	assert.Equal(t, "resolver error", KindResolverError.String())
	assert.Equal(t, "no addresses", KindNoAddresses.String())
}
