// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The Stelnet Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/stelnet/endpoint/internal/triemap"
)

var _ Network = (*FilteredNetwork)(nil)

// FilteredNetworkConfig is the configuration for a FilteredNetwork.
type FilteredNetworkConfig struct {
	// Allowed destination prefixes.
	AllowedDestinations []netip.Prefix
	// Denied destination prefixes. Deny wins over allow.
	DeniedDestinations []netip.Prefix
	// Resolver resolves dialed addresses to candidate endpoints. If nil, a
	// resolver bound to the upstream network is used.
	Resolver *Resolver
	// The network to forward connections to.
	Upstream Network
}

// FilteredNetwork is a network that only talks to destinations inside the
// allowed prefixes. Dialed addresses are resolved to endpoint candidates
// first, and the first allowed candidate is used; names whose every
// candidate is filtered out fail without a connection attempt.
type FilteredNetwork struct {
	allowed  *triemap.TrieMap[struct{}]
	denied   *triemap.TrieMap[struct{}]
	resolver *Resolver
	upstream Network
}

// Filtered creates a new filtered network with the given configuration.
func Filtered(conf *FilteredNetworkConfig) *FilteredNetwork {
	allowed := triemap.New[struct{}]()
	for _, prefix := range conf.AllowedDestinations {
		allowed.Insert(prefix, struct{}{})
	}

	denied := triemap.New[struct{}]()
	for _, prefix := range conf.DeniedDestinations {
		denied.Insert(prefix, struct{}{})
	}

	resolver := conf.Resolver
	if resolver == nil {
		resolver, _ = NewResolver(conf.Upstream, nil)
	}

	return &FilteredNetwork{
		allowed:  allowed,
		denied:   denied,
		resolver: resolver,
		upstream: conf.Upstream,
	}
}

func (n *FilteredNetwork) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	candidate, err := n.allowedEndpoint(ctx, addr, false)
	if err != nil {
		return nil, err
	}

	return n.upstream.DialContext(ctx, network, candidate.String())
}

func (n *FilteredNetwork) LookupHost(ctx context.Context, host string) ([]string, error) {
	return n.upstream.LookupHost(ctx, host)
}

func (n *FilteredNetwork) Listen(network, address string) (net.Listener, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candidate, err := n.allowedEndpoint(ctx, address, true)
	if err != nil {
		return nil, err
	}

	return n.upstream.Listen(network, candidate.String())
}

func (n *FilteredNetwork) ListenPacket(network, address string) (net.PacketConn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candidate, err := n.allowedEndpoint(ctx, address, true)
	if err != nil {
		return nil, err
	}

	return n.upstream.ListenPacket(network, candidate.String())
}

// allowedEndpoint resolves the address and returns the first candidate
// inside the allowed prefixes.
func (n *FilteredNetwork) allowedEndpoint(ctx context.Context, address string, passive bool) (Endpoint, error) {
	candidates, err := n.resolver.Resolve(ctx, address, &ResolveOptions{Passive: passive})
	if err != nil {
		return Endpoint{}, err
	}

	for _, candidate := range candidates {
		if n.allowedDestination(candidate.Addr.Unmap()) {
			return candidate, nil
		}
	}

	return Endpoint{}, fmt.Errorf("no allowed addresses found for %s", address)
}

func (n *FilteredNetwork) allowedDestination(addr netip.Addr) bool {
	_, allowed := n.allowed.Get(addr)
	if allowed {
		if _, denied := n.denied.Get(addr); denied {
			allowed = false
		}
	}
	return allowed
}
