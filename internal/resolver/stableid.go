// Package resolver implements the Selector Resolver (C3): scoring
// candidate DOM elements against a composite Selector and minting stable
// identifiers that survive later DOM reflows (spec §4.3). The in-page
// collection scripts are evaluated through chromedp, grounded on
// cloudrouter/cmd/worker/browser.go's chromedp.Evaluate/runtime.CallFunctionOn
// usage; the scoring model itself is pure Go so it is independently
// testable against the determinism properties in spec §8.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// NodeRecord is what the StableNodeStore retains for a stable ID (spec §3).
type NodeRecord struct {
	DOMPath    string
	TextDigest string
}

// StableNodeStore maps stable_id → {dom_path, text_digest}. It is owned
// per-session (spec §9 "stable-ID arena" redesign note) rather than the
// original's process-wide dict.
type StableNodeStore struct {
	mu      sync.RWMutex
	records map[string]NodeRecord
}

// NewStableNodeStore builds an empty, session-scoped store.
func NewStableNodeStore() *StableNodeStore {
	return &StableNodeStore{records: make(map[string]NodeRecord)}
}

const textDigestLen = 80
const stableIDLen = 24

// TextDigest returns the first 80 characters of innerText, per spec §4.3.
func TextDigest(innerText string) string {
	r := []rune(innerText)
	if len(r) > textDigestLen {
		r = r[:textDigestLen]
	}
	return string(r)
}

// MakeID computes stable_id = sha256(dom_path + "|" + text_digest)[:24],
// deterministic for a given (dom_path, text_digest) pair (spec §4.3, §8
// "Stable ID determinism").
func MakeID(domPath, textDigest string) string {
	sum := sha256.Sum256([]byte(domPath + "|" + textDigest))
	return hex.EncodeToString(sum[:])[:stableIDLen]
}

// Put records or refreshes an entry. Entries are never auto-evicted within
// a session (spec §3 StableNodeStore lifecycle).
func (s *StableNodeStore) Put(id string, rec NodeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
}

// Get looks up a stored record by stable ID.
func (s *StableNodeStore) Get(id string) (NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// RefreshDOMPath updates only the dom_path of an existing record (a fresh
// catalog generation refreshes dom_path without invalidating the entry).
func (s *StableNodeStore) RefreshDOMPath(id, domPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.DOMPath = domPath
		s.records[id] = rec
	}
}
