// Package proxy manages the pool of proxy endpoints handed to sessions.
package proxy

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

var (
	// ErrEmptyPool is returned when a proxy is requested from an empty pool.
	ErrEmptyPool = errors.New("no proxy available")
	// ErrInvalidProxy rejects blank endpoints.
	ErrInvalidProxy = errors.New("invalid proxy")
)

// Strategy selects how Pick chooses an entry.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
)

// Rotator is an ordered pool of proxy endpoints with a rotation cursor.
// Duplicates are allowed and rotate in insertion order.
type Rotator struct {
	mu      sync.Mutex
	proxies []string
	cursor  int
	rand    func(n int) int
}

// NewRotator creates a rotator over proxies. Blank entries are dropped.
func NewRotator(proxies ...string) *Rotator {
	r := &Rotator{rand: rand.Intn}
	for _, p := range proxies {
		if p = strings.TrimSpace(p); p != "" {
			r.proxies = append(r.proxies, p)
		}
	}
	return r
}

// Next returns the entry at the cursor and advances it modulo the pool size.
func (r *Rotator) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return "", ErrEmptyPool
	}
	if r.cursor >= len(r.proxies) {
		r.cursor = 0
	}
	p := r.proxies[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.proxies)
	return p, nil
}

// Random returns a uniformly chosen entry without moving the cursor.
func (r *Rotator) Random() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return "", ErrEmptyPool
	}
	return r.proxies[r.rand(len(r.proxies))], nil
}

// Pick returns an entry using strategy. Unknown strategies rotate.
func (r *Rotator) Pick(strategy Strategy) (string, error) {
	if strategy == Random {
		return r.Random()
	}
	return r.Next()
}

// Add appends an endpoint.
func (r *Rotator) Add(proxy string) error {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return ErrInvalidProxy
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = append(r.proxies, proxy)
	return nil
}

// Remove drops the first occurrence of proxy and reports whether it existed.
// The cursor keeps pointing at the entry that would have come next.
func (r *Rotator) Remove(proxy string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.proxies {
		if p != proxy {
			continue
		}
		r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
		if i < r.cursor {
			r.cursor--
		}
		if len(r.proxies) == 0 || r.cursor >= len(r.proxies) {
			r.cursor = 0
		}
		return true
	}
	return false
}

// Replace swaps the whole pool and resets the cursor.
func (r *Rotator) Replace(proxies []string) {
	fresh := NewRotator(proxies...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = fresh.proxies
	r.cursor = 0
}

// List returns a copy of the pool in rotation order.
func (r *Rotator) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.proxies...)
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

func (r *Rotator) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("Rotator(%d proxies, cursor=%d)", len(r.proxies), r.cursor)
}
