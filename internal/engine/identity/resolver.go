// Package identity collapses the several historical identifiers a staff member may be known by into
// one canonical recipient id.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// Unclassified is the kind given to keys that match no configured kind.
const Unclassified = "unclassified"

// Options configures a Resolver.
type Options struct {
	// Precedence lists kinds from most to least authoritative.
	Precedence []string
	// Patterns optionally classify unqualified keys, keyed by kind.
	Patterns map[string]string
}

type classifier struct {
	kind string
	re   *regexp.Regexp
}

// Resolver is safe for concurrent use; it holds no mutable state after construction.
type Resolver struct {
	rank        map[string]int
	classifiers []classifier
}

func NewResolver(opts Options) (*Resolver, error) {
	if len(opts.Precedence) == 0 {
		return nil, fmt.Errorf("identity: precedence must not be empty")
	}

	r := &Resolver{rank: make(map[string]int, len(opts.Precedence))}
	for i, kind := range opts.Precedence {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			return nil, fmt.Errorf("identity: empty kind at precedence %d", i)
		}
		if _, dup := r.rank[kind]; dup {
			return nil, fmt.Errorf("identity: kind %q listed twice", kind)
		}
		r.rank[kind] = i

		if expr, ok := opts.Patterns[kind]; ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("identity: pattern for %q: %w", kind, err)
			}
			r.classifiers = append(r.classifiers, classifier{kind: kind, re: re})
		}
	}

	return r, nil
}

type candidate struct {
	kind  string
	value string
	raw   string
	rank  int
}

func (c candidate) less(o candidate) bool {
	if c.rank != o.rank {
		return c.rank < o.rank
	}
	if c.value != o.value {
		return c.value < o.value
	}
	return c.raw < o.raw
}

// Resolve picks the highest-precedence key. Ties within a kind go to the lexicographically smallest
// value, so the result never depends on the order keys were supplied in.
func (r *Resolver) Resolve(keys []string) (models.CanonicalRecipient, error) {
	var best *candidate

	for _, raw := range keys {
		c, ok := r.classify(raw)
		if !ok {
			continue
		}
		if best == nil || c.less(*best) {
			cc := c
			best = &cc
		}
	}

	if best == nil {
		return models.CanonicalRecipient{}, errors.NewInvalidRecipientError(
			fmt.Sprintf("%d recipient keys supplied, none usable", len(keys)))
	}

	id := best.value
	if best.kind != Unclassified {
		id = best.kind + ":" + best.value
	}

	return models.CanonicalRecipient{
		RecipientID: id,
		Kind:        best.kind,
		Source:      best.raw,
	}, nil
}

func (r *Resolver) classify(raw string) (candidate, bool) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return candidate{}, false
	}

	if prefix, value, found := strings.Cut(key, ":"); found {
		kind := strings.ToLower(strings.TrimSpace(prefix))
		if rank, known := r.rank[kind]; known {
			value = strings.TrimSpace(value)
			if value == "" {
				return candidate{}, false
			}
			return candidate{kind: kind, value: value, raw: raw, rank: rank}, true
		}
	}

	for _, c := range r.classifiers {
		if c.re.MatchString(key) {
			return candidate{kind: c.kind, value: key, raw: raw, rank: r.rank[c.kind]}, true
		}
	}

	return candidate{kind: Unclassified, value: key, raw: raw, rank: len(r.rank)}, true
}
