package objective

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
)

// MatchAnswer compares a submitted answer with the expected one. Both sides
// are trimmed; case is folded unless caseSensitive is set.
func MatchAnswer(expected, given string, caseSensitive bool) bool {
	expected = strings.TrimSpace(expected)
	given = strings.TrimSpace(given)
	if caseSensitive {
		return expected == given
	}
	return strings.EqualFold(expected, given)
}

// NormalizeItem is the identity used to detect duplicate collected items.
func NormalizeItem(item string) string {
	return strings.ToLower(strings.Join(strings.Fields(item), " "))
}

// Enigma is one question/answer pair of a multi-step enigma.
type Enigma struct {
	Question string `json:"question"`
	Answer   string `json:"-"`
}

// ParseEnigmas reads one "question|answer" pair per line. Blank lines are
// skipped; the first "|" separates question from answer.
func ParseEnigmas(blob string) ([]Enigma, error) {
	var out []Enigma
	for i, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		q, a, ok := strings.Cut(line, "|")
		q = strings.TrimSpace(q)
		a = strings.TrimSpace(a)
		if !ok || q == "" || a == "" {
			return nil, invalid("enigmas", fmt.Sprintf("line %d must be \"question|answer\"", i+1))
		}
		out = append(out, Enigma{Question: q, Answer: a})
	}
	return out, nil
}

// SelectPool draws n ids from pool for the given key. The draw depends only on
// the key and the pool content so repeated draws for the same team agree.
func SelectPool(pool []string, n int, key string) []string {
	ids := append([]string(nil), pool...)
	sort.Strings(ids)
	if n >= len(ids) {
		return ids
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	picked := ids[:n]
	sort.Strings(picked)
	return picked
}
