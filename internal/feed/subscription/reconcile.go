package subscription

import (
	"sort"

	"pricefeed/internal/feed/memorystore"
)

// Set is the group of instrument keys ("BASE~QUOTE") a connection believes
// it is subscribed to.
type Set map[string]struct{}

func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the keys in sorted order.
func (s Set) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Diff is the outcome of one reconciliation pass. Removals are sent before
// additions.
type Diff struct {
	ToAdd    []string
	ToRemove []string
	Next     Set
}

// Empty reports whether the pass needs no frames.
func (d Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Reconcile computes the frames needed to move from current to desired.
// current is not modified.
func Reconcile(current Set, desired []memorystore.TradingPair) Diff {
	next := make(Set, len(desired))
	for _, p := range desired {
		next[p.Key()] = struct{}{}
	}

	var diff Diff
	for k := range current {
		if !next.Has(k) {
			diff.ToRemove = append(diff.ToRemove, k)
		}
	}
	for k := range next {
		if !current.Has(k) {
			diff.ToAdd = append(diff.ToAdd, k)
		}
	}
	sort.Strings(diff.ToRemove)
	sort.Strings(diff.ToAdd)
	diff.Next = next
	return diff
}
