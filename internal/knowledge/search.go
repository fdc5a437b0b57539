package knowledge

import (
	"sort"
	"strings"
	"time"
)

type Match struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Relevant ranks past commands against query by token overlap with the
// original request and the command itself. Successful and recent records
// rank higher; duplicate commands collapse to their best-scoring entry.
func (s *Store) Relevant(query string, limit int) []Match {
	s.mu.Lock()
	records := append([]Record(nil), s.base.Commands...)
	s.mu.Unlock()
	return rankRecords(records, query, limit, time.Now())
}

func rankRecords(records []Record, query string, limit int, now time.Time) []Match {
	qn := normalizeText(query)
	if qn == "" {
		return nil
	}
	if limit <= 0 {
		limit = 8
	}
	qTokens := splitTokens(qn)

	best := map[string]Match{}
	for _, rec := range records {
		base := 0.0
		if rec.Request != "" {
			base = similarityScore(qn, qTokens, normalizeText(rec.Request))
		}
		if s := similarityScore(qn, qTokens, normalizeText(rec.Command)); s*0.8 > base {
			base = s * 0.8
		}
		if base <= 0 {
			continue
		}
		score := base + recencyBonus(rec.Timestamp, now)
		if rec.Success {
			score += 2
		} else {
			score -= 3
		}
		if score <= 0 {
			continue
		}
		key := normalizeText(rec.Command)
		if existing, ok := best[key]; ok && existing.Score >= score {
			continue
		}
		best[key] = Match{Record: rec, Score: score}
	}

	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Record.Timestamp > matches[j].Record.Timestamp
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func normalizeText(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "of": {}, "in": {}, "on": {}, "my": {},
	"how": {}, "do": {}, "i": {}, "is": {}, "me": {}, "what": {}, "cortana": {},
	"can": {}, "you": {}, "please": {}, "for": {}, "and": {}, "with": {},
}

func splitTokens(input string) []string {
	parts := strings.FieldsFunc(input, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '-', '_', ':', '/', '.', ',', '?', '!', '"', '\'':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, token := range parts {
		if len(token) < 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func similarityScore(query string, qTokens []string, candidate string) float64 {
	if candidate == "" {
		return 0
	}
	if query == candidate {
		return 24
	}
	score := 0.0
	if len(query) > 3 && strings.Contains(candidate, query) {
		score += 10
	}
	if len(candidate) > 3 && strings.Contains(query, candidate) {
		score += 8
	}
	cTokens := splitTokens(candidate)
	if len(qTokens) > 0 && len(cTokens) > 0 {
		cSet := make(map[string]struct{}, len(cTokens))
		for _, token := range cTokens {
			cSet[token] = struct{}{}
		}
		shared := 0
		for _, token := range qTokens {
			if _, ok := cSet[token]; ok {
				shared++
			}
		}
		if shared > 0 {
			score += float64(shared) * 3.2
			score += float64(shared) / float64(len(qTokens)) * 5
		}
	}
	return score
}

func recencyBonus(ts string, now time.Time) float64 {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(ts))
	if err != nil {
		return 0
	}
	age := now.Sub(parsed)
	switch {
	case age < 12*time.Hour:
		return 4
	case age < 3*24*time.Hour:
		return 2.5
	case age < 14*24*time.Hour:
		return 1
	default:
		return 0
	}
}
