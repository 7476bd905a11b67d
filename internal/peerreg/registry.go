// Package peerreg identifies inbound requests by bearer token against a
// static, configuration-derived table of peers.
package peerreg

import (
	"crypto/subtle"
	"errors"
)

// Kind is the relationship of a peer to this relay.
type Kind int

const (
	Parent Kind = iota
	Child
	Sibling
)

func (k Kind) String() string {
	switch k {
	case Parent:
		return "parent"
	case Child:
		return "child"
	case Sibling:
		return "sibling"
	default:
		return "unknown"
	}
}

// Peer is one configured relationship, identified by any of its auth tokens.
type Peer struct {
	Kind          Kind
	AccountName   string
	AuthTokens    []string
	AddressSuffix string // non-empty and dot-free for Child peers only
}

// ErrUnauthorized is returned by Identify when no token matches.
var ErrUnauthorized = errors.New("peerreg: unauthorized")

// ErrMultipleParents is returned by New when more than one Parent peer is configured.
var ErrMultipleParents = errors.New("peerreg: at most one parent peer is allowed")

// ErrChildMissingSuffix is returned by New when a Child peer lacks a valid address suffix.
var ErrChildMissingSuffix = errors.New("peerreg: child peer requires a dot-free address suffix")

// Registry is an immutable token -> peer lookup table built once at startup.
type Registry struct {
	byToken map[string]*Peer
	peers   []*Peer
}

// New validates peers and builds the immutable registry.
func New(peers []Peer) (*Registry, error) {
	r := &Registry{byToken: make(map[string]*Peer)}
	sawParent := false

	for i := range peers {
		p := peers[i]
		if p.Kind == Parent {
			if sawParent {
				return nil, ErrMultipleParents
			}
			sawParent = true
		}
		if p.Kind == Child {
			if p.AddressSuffix == "" || containsDot(p.AddressSuffix) {
				return nil, ErrChildMissingSuffix
			}
		}
		stored := p
		r.peers = append(r.peers, &stored)
		for _, tok := range p.AuthTokens {
			r.byToken[tok] = &stored
		}
	}
	return r, nil
}

// Identify looks up the peer owning authToken. Candidates are compared in
// constant time with respect to length rather than via a direct map index,
// since the token set is small, fixed at startup, and the comparison guards
// a secret — the usual justification for a map's O(1) average lookup doesn't
// outweigh avoiding a timing oracle here.
func (r *Registry) Identify(authToken string) (*Peer, error) {
	for token, peer := range r.byToken {
		if len(token) != len(authToken) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(authToken)) == 1 {
			return peer, nil
		}
	}
	return nil, ErrUnauthorized
}

// Peers returns every configured peer, for diagnostics/startup logging only.
func (r *Registry) Peers() []*Peer {
	return r.peers
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}
