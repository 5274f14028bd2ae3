package classify

import (
	"regexp"
	"sort"
	"strings"
)

type tagTerm struct {
	tag     string
	pattern *regexp.Regexp
}

func term(tag, expr string) tagTerm {
	return tagTerm{tag: tag, pattern: regexp.MustCompile(expr)}
}

// Position abbreviations are matched case-sensitively on word boundaries so
// that "te" in ordinary words does not count.
var tagVocabulary = []tagTerm{
	term("QB", `\b(QBs?|[Qq]uarterbacks?)\b`),
	term("RB", `\b(RBs?|[Rr]unning [Bb]acks?)\b`),
	term("WR", `\b(WRs?|[Ww]ide [Rr]eceivers?)\b`),
	term("TE", `\b(TEs?|[Tt]ight [Ee]nds?)\b`),
	term("K", `\b([Kk]ickers?)\b`),
	term("DST", `\b(D/ST|DST|DEF|[Dd]efenses?)\b`),
	term("FLEX", `\bFLEX\b`),
	term("PPR", `(?i)\b(full[- ])?ppr\b`),
	term("Half PPR", `(?i)\bhalf[- ]ppr\b`),
	term("Superflex", `(?i)\bsuper[- ]?flex\b`),
	term("Dynasty", `(?i)\bdynasty\b`),
	term("Redraft", `(?i)\bredraft\b`),
	term("Keeper", `(?i)\bkeepers?\b`),
	term("Best Ball", `(?i)\bbest[- ]ball\b`),
	term("DFS", `(?i)\b(dfs|daily fantasy|draftkings|fanduel)\b`),
	term("IDP", `\bIDP\b`),
}

// ExtractTags scans title and description for the fixed vocabulary and returns
// the matching tags, deduplicated and sorted.
func ExtractTags(title, description string) []string {
	text := title + " " + description
	seen := make(map[string]struct{})
	for _, t := range tagVocabulary {
		if t.pattern.MatchString(text) {
			seen[t.tag] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// MergeTags unions tag sets, dropping blanks.
func MergeTags(sets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, t := range set {
			t = strings.TrimSpace(t)
			if t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
