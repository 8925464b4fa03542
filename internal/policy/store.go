package policy

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Store serves the current policy snapshot to evaluations. Reads are a
// single atomic pointer load and never block; reloads go through a writer
// lock so version monotonicity is checked against a stable current value.
type Store struct {
	current atomic.Pointer[Document]
	swapMu  sync.Mutex
}

// NewStore creates a Store serving the given initial document.
func NewStore(doc *Document) *Store {
	s := &Store{}
	s.current.Store(doc)
	return s
}

// Current returns the active policy snapshot. An evaluation holds the
// returned pointer for its whole lifetime; a concurrent reload never
// mutates it.
func (s *Store) Current() *Document {
	return s.current.Load()
}

// Swap installs a new document. The version must strictly increase under
// natural ordering (digit runs compare as numbers, so "2026-08-25.10" is
// newer than "2026-08-25.9"); a reload with an equal or older version
// fails and the prior policy stays in effect.
func (s *Store) Swap(doc *Document) error {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	old := s.current.Load()
	if old != nil && compareVersions(doc.Version, old.Version) <= 0 {
		return fmt.Errorf("policy: version %q does not increase over active version %q", doc.Version, old.Version)
	}
	s.current.Store(doc)
	return nil
}

// compareVersions orders version strings naturally: runs of digits compare
// as numbers, everything else compares byte-wise.
func compareVersions(a, b string) int {
	for a != "" || b != "" {
		aRun, aNumeric, aRest := nextRun(a)
		bRun, bNumeric, bRest := nextRun(b)
		if aNumeric && bNumeric {
			at := strings.TrimLeft(aRun, "0")
			bt := strings.TrimLeft(bRun, "0")
			if len(at) != len(bt) {
				if len(at) < len(bt) {
					return -1
				}
				return 1
			}
			if at != bt {
				if at < bt {
					return -1
				}
				return 1
			}
		} else if aRun != bRun {
			if aRun < bRun {
				return -1
			}
			return 1
		}
		a, b = aRest, bRest
	}
	return 0
}

// nextRun splits off the leading run of digits or non-digits.
func nextRun(s string) (run string, numeric bool, rest string) {
	if s == "" {
		return "", false, ""
	}
	isDigit := func(c byte) bool { return c >= '0' && c <= '9' }
	numeric = isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == numeric {
		i++
	}
	return s[:i], numeric, s[i:]
}
