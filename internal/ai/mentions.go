package ai

import (
	"regexp"
	"sort"
	"strings"
)

const (
	maxMentionedCareers = 6
	genericScore        = 6
	mentionConfidence   = 0.5
	sourceLLMMentions   = "llm_mentions"
)

// mentionPatterns find career names in prose. Each has one capture group
// holding the name.
var mentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(software engineer|data scientist|product manager|consultant|researcher|analyst)\b`),
	regexp.MustCompile(`(?i)\b(developer|designer|manager|scientist|engineer|architect|specialist)\b`),
	regexp.MustCompile(`(?i)\b(mba|phd|master's|bachelor's)\b.*?\b(?:holder|graduate|student)\b`),
	regexp.MustCompile(`(?i)\b(marketing|sales|finance|operations|strategy|consulting)\b.*?(?:role|position|career|job)`),
}

// mentionScores are rough criterion vectors, in Criteria order, for careers
// commonly named in answers. The first key contained in a mention, or
// containing it, wins.
var mentionScores = []struct {
	key    string
	scores []float64
}{
	{"software engineer", []float64{9, 8, 8, 7, 8, 9, 6, 9}},
	{"data scientist", []float64{8, 7, 9, 6, 8, 8, 5, 8}},
	{"product manager", []float64{8, 7, 8, 6, 9, 8, 7, 7}},
	{"consultant", []float64{7, 6, 7, 4, 9, 6, 6, 6}},
	{"researcher", []float64{6, 8, 6, 8, 7, 5, 4, 7}},
	{"analyst", []float64{6, 7, 6, 7, 7, 7, 7, 6}},
	{"designer", []float64{6, 6, 7, 7, 7, 7, 6, 8}},
	{"manager", []float64{7, 7, 8, 5, 8, 7, 8, 6}},
	{"developer", []float64{8, 7, 7, 7, 7, 8, 6, 8}},
	{"architect", []float64{9, 8, 7, 6, 8, 7, 5, 7}},
}

var acronyms = map[string]string{"mba": "MBA", "phd": "PhD"}

type mention struct {
	name       string
	start, end int
}

// careersFromMentions builds a rough matrix from the careers an answer names
// in prose. Mentions are taken in order of appearance, a mention inside an
// earlier, longer one is ignored, and at most six careers are kept.
func careersFromMentions(text string) *CareerMatrix {
	var found []mention
	for _, re := range mentionPatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			found = append(found, mention{
				name:  strings.ToLower(text[loc[2]:loc[3]]),
				start: loc[2],
				end:   loc[3],
			})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].end > found[j].end
	})

	var names []string
	seen := make(map[string]struct{})
	covered := -1
	for _, m := range found {
		if m.end <= covered {
			continue
		}
		covered = max(covered, m.end)
		if _, dup := seen[m.name]; dup {
			continue
		}
		seen[m.name] = struct{}{}
		names = append(names, m.name)
		if len(names) == maxMentionedCareers {
			break
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	out := &CareerMatrix{Source: sourceLLMMentions}
	for _, n := range names {
		vector := mentionVector(n)
		scores := make(map[string]float64, len(Criteria))
		for i, c := range Criteria {
			scores[c] = vector[i]
		}
		out.Careers = append(out.Careers, Career{ID: slug(n), Name: titleCase(n), Scores: scores})
	}
	return out
}

func mentionVector(name string) []float64 {
	for _, d := range mentionScores {
		if strings.Contains(name, d.key) || strings.Contains(d.key, name) {
			return d.scores
		}
	}
	generic := make([]float64, len(Criteria))
	for i := range generic {
		generic[i] = genericScore
	}
	return generic
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if a, ok := acronyms[w]; ok {
			words[i] = a
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
