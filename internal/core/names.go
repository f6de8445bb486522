// ABOUTME: Curated random-name pool for auto-created personas
// ABOUTME: Names all carry the reserved prefix so users cannot squat them
package core

import (
	_ "embed"
	"math/rand/v2"
	"strings"
)

//go:embed names.txt
var namesFile string

// reservedPrefix marks pool-owned names. User-created names may not start
// with it unless the caller is elevated.
const reservedPrefix = "jan "

// NamePool draws random persona names from a curated list.
type NamePool struct {
	names []string
}

// DefaultNamePool returns the embedded pool.
func DefaultNamePool() *NamePool {
	return NewNamePool(strings.Split(strings.TrimSpace(namesFile), "\n"))
}

// NewNamePool builds a pool from the given names, dropping blanks.
func NewNamePool(names []string) *NamePool {
	pool := &NamePool{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			pool.names = append(pool.names, n)
		}
	}
	return pool
}

// Size returns the number of names in the pool.
func (p *NamePool) Size() int {
	return len(p.names)
}

// Pick returns a random pool name.
func (p *NamePool) Pick() string {
	return p.names[rand.IntN(len(p.names))]
}
