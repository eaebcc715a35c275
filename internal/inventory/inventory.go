// Package inventory implements the Step Inventory: the indexed
// catalogue of step definitions, rebuilt atomically and queried by verb,
// matched text, or normalized prefix.
package inventory

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Biometria-se/grizzly-lsp/internal/logging"
)

// Verb is one of the three Gherkin step verbs a definition is registered
// under. "And"/"but"/"*" never appear here — they inherit the nearest
// preceding explicit verb before reaching the inventory.
type Verb string

const (
	Given Verb = "given"
	When  Verb = "when"
	Then  Verb = "then"
)

// SourceLocation is an optional pointer to where a definition lives in the
// external step-definition library.
type SourceLocation struct {
	File string
	Line int
}

// Definition is one catalogued step definition.
type Definition struct {
	Verb                Verb
	Expression          string
	CleanExpression     string
	RegexPatterns       []*regexp.Regexp
	ExpressionVariants  []string
	Help                string
	SourceLocation      *SourceLocation
	// ArgumentEnums maps a 1-based quoted-argument position (left to right)
	// to the enumerated alternatives available at that position, when the
	// definition's placeholder at that position is typed with an enum parse
	// type. Used by completion's argument-enumeration and by diagnostics
	// argument validation.
	ArgumentEnums map[int][]string
	// FileArgumentPositions marks, by the same 1-based ordering, which
	// quoted arguments are filename references.
	FileArgumentPositions map[int]bool
}

// index is the immutable snapshot swapped in atomically on each rebuild.
type index struct {
	revision uint64
	byVerb   map[Verb][]*Definition
	prefixes []string // sorted, deduplicated normalized clean-expression prefixes
}

// Inventory holds the active, atomically-swappable catalogue. Coalescing
// concurrent rebuild requests onto one in-flight rebuild is
// the Server Core's responsibility (internal/server), since that is where
// the expensive work — the Source Loader harvest — actually happens; Build
// itself is a cheap, idempotent atomic swap.
type Inventory struct {
	current atomic.Pointer[index]
}

// New returns an empty, ready-to-query Inventory.
func New() *Inventory {
	inv := &Inventory{}
	inv.current.Store(&index{byVerb: map[Verb][]*Definition{}})
	return inv
}

// Revision returns the current inventory's rebuild counter.
func (inv *Inventory) Revision() uint64 {
	return inv.current.Load().revision
}

// Build replaces the active inventory atomically. Concurrent Build calls coalesce onto one in-flight rebuild via
// singleflight; every caller observes the result of whichever build ran.
func (inv *Inventory) Build(definitions []*Definition) {
	next := &index{
		revision: inv.current.Load().revision + 1,
		byVerb:   map[Verb][]*Definition{Given: nil, When: nil, Then: nil},
	}
	prefixSet := map[string]struct{}{}
	for _, d := range definitions {
		next.byVerb[d.Verb] = append(next.byVerb[d.Verb], d)
		prefixSet[normalizeQuery(d.CleanExpression)] = struct{}{}
	}
	prefixes := make([]string, 0, len(prefixSet))
	for p := range prefixSet {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	next.prefixes = prefixes

	inv.current.Store(next)
	logging.Named("inventory").Sugar().Infow("rebuilt inventory",
		"revision", next.revision,
		"given", len(next.byVerb[Given]),
		"when", len(next.byVerb[When]),
		"then", len(next.byVerb[Then]),
	)
}

// normalizeQuery lowercases and collapses internal whitespace runs, the
// normalization shared by prefix queries and lookup text.
func normalizeQuery(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// NormalizeText exports normalizeQuery for callers outside this package
// (internal/completion's step-completion ranking) that need the exact same
// normalization the inventory applies to its own prefixes.
func NormalizeText(s string) string {
	return normalizeQuery(s)
}

// Lookup returns the first definition (in insertion order) under verb whose
// regex matches text, with ties on definitions broken by the lowest
// alternation-variant index.
func (inv *Inventory) Lookup(verb Verb, text string) (*Definition, int, bool) {
	snap := inv.current.Load()
	for _, d := range snap.byVerb[verb] {
		for i, rx := range d.RegexPatterns {
			if rx.MatchString(text) {
				return d, i, true
			}
		}
	}
	return nil, 0, false
}

// Candidates returns definitions under verb whose clean expression begins
// with normalizedPrefix after the same normalization is applied to the
// candidate. An empty prefix returns every
// definition for the verb, preserving registration order.
func (inv *Inventory) Candidates(verb Verb, prefix string) []*Definition {
	snap := inv.current.Load()
	normPrefix := normalizeQuery(prefix)
	all := snap.byVerb[verb]
	if normPrefix == "" {
		out := make([]*Definition, len(all))
		copy(out, all)
		return out
	}
	var out []*Definition
	for _, d := range all {
		if strings.HasPrefix(normalizeQuery(d.CleanExpression), normPrefix) {
			out = append(out, d)
		}
	}
	return out
}

// All returns every definition registered under verb, in registration order.
func (inv *Inventory) All(verb Verb) []*Definition {
	snap := inv.current.Load()
	out := make([]*Definition, len(snap.byVerb[verb]))
	copy(out, snap.byVerb[verb])
	return out
}

// AllVerbs returns every definition across all verbs, grouped by verb, for
// the supplemented "list-steps" workspace-symbol request.
func (inv *Inventory) AllVerbs() map[Verb][]*Definition {
	snap := inv.current.Load()
	out := make(map[Verb][]*Definition, len(snap.byVerb))
	for v, defs := range snap.byVerb {
		cp := make([]*Definition, len(defs))
		copy(cp, defs)
		out[v] = cp
	}
	return out
}

// Prefixes returns the sorted, deduplicated set of normalized clean-
// expression prefixes currently known, used for prefix-based narrowing.
func (inv *Inventory) Prefixes() []string {
	snap := inv.current.Load()
	out := make([]string, len(snap.prefixes))
	copy(out, snap.prefixes)
	return out
}
