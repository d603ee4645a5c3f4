package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tidbyt.dev/transit/model"
)

// Normalized Levenshtein similarity a fuzzy match must exceed.
const FuzzyThreshold = 0.6

type tier int

const (
	tierNone tier = iota
	tierFuzzy
	tierSubstring
	tierPrefix
	tierExact
)

type entry struct {
	stop    model.Stop
	nameLen int
	fields  []string
	tokens  [][]string
}

// Matches stops by name, code and description. Immutable once built.
type Index struct {
	entries []entry
}

// Indexes stops and stations. Entrances, generic nodes and boarding
// areas are left out.
func New(stops []model.Stop) *Index {
	idx := &Index{}

	for _, stop := range stops {
		if stop.LocationType != model.LocationTypeStop && stop.LocationType != model.LocationTypeStation {
			continue
		}
		e := entry{stop: stop}
		for _, f := range []string{stop.Name, stop.Code, stop.Desc} {
			n := normalize(f)
			if n == "" {
				continue
			}
			e.fields = append(e.fields, n)
			e.tokens = append(e.tokens, strings.Fields(n))
		}
		e.nameLen = utf8.RuneCountInString(normalize(stop.Name))
		idx.entries = append(idx.entries, e)
	}

	return idx
}

// Strips diacritics, folds case and collapses whitespace. Transformers
// and casers are stateful, hence created per call.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

func similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func (e *entry) match(q string) (tier, float64) {
	best, score := tierNone, 0.0
	for i, f := range e.fields {
		switch {
		case f == q:
			return tierExact, 1
		case strings.HasPrefix(f, q):
			best = max(best, tierPrefix)
		case strings.Contains(f, q):
			best = max(best, tierSubstring)
		}
		if best > tierFuzzy {
			continue
		}

		sim := similarity(f, q)
		for _, tok := range e.tokens[i] {
			sim = max(sim, similarity(tok, q))
		}
		if sim > FuzzyThreshold && sim > score {
			best, score = tierFuzzy, sim
		}
	}
	if best > tierFuzzy {
		// Scored only within the fuzzy tier
		score = 0
	}
	return best, score
}

// Returns stops matching query, best match first. Exact matches rank
// above prefix matches, which rank above substring matches, which in
// turn rank above fuzzy matches. If limit > 0, at most limit stops
// are returned.
func (idx *Index) Search(query string, limit int) []model.Stop {
	q := normalize(query)
	if q == "" {
		return []model.Stop{}
	}

	type hit struct {
		e     *entry
		tier  tier
		score float64
	}
	hits := []hit{}
	for i := range idx.entries {
		e := &idx.entries[i]
		t, score := e.match(q)
		if t == tierNone {
			continue
		}
		hits = append(hits, hit{e, t, score})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.tier != b.tier {
			return a.tier > b.tier
		}
		if a.tier == tierFuzzy && a.score != b.score {
			return a.score > b.score
		}
		if a.e.nameLen != b.e.nameLen {
			return a.e.nameLen < b.e.nameLen
		}
		return a.e.stop.ID < b.e.stop.ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	stops := make([]model.Stop, 0, len(hits))
	for _, h := range hits {
		stops = append(stops, h.e.stop)
	}
	return stops
}
