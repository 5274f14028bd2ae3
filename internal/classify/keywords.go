package classify

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// gazetteer holds names and domain terms worth indexing verbatim.
var gazetteer = []string{
	// players
	"Patrick Mahomes", "Josh Allen", "Lamar Jackson", "Jalen Hurts", "Joe Burrow",
	"C.J. Stroud", "Christian McCaffrey", "Bijan Robinson", "Breece Hall", "Saquon Barkley",
	"Jahmyr Gibbs", "Derrick Henry", "Jonathan Taylor", "De'Von Achane", "Justin Jefferson",
	"Ja'Marr Chase", "CeeDee Lamb", "Tyreek Hill", "Amon-Ra St. Brown", "A.J. Brown",
	"Puka Nacua", "Garrett Wilson", "Travis Kelce", "Sam LaPorta", "Mark Andrews",
	"Trey McBride", "George Kittle",
	// teams
	"Cardinals", "Falcons", "Ravens", "Bills", "Panthers", "Bears", "Bengals", "Browns",
	"Cowboys", "Broncos", "Lions", "Packers", "Texans", "Colts", "Jaguars", "Chiefs",
	"Raiders", "Chargers", "Rams", "Dolphins", "Vikings", "Patriots", "Saints", "Giants",
	"Jets", "Eagles", "Steelers", "49ers", "Seahawks", "Buccaneers", "Titans", "Commanders",
	// domain terms
	"fantasy football", "waiver wire", "start sit", "sleepers", "busts", "breakouts",
	"target share", "snap count", "red zone", "air yards", "mock draft", "trade value",
	"injury report", "bye week", "playoffs",
}

var gazetteerTerms = newGazetteerIndex(gazetteer)

// gazetteerIndex finds every gazetteer term in one pass over the text. Hits
// inside a longer word are discarded. The underlying matcher keeps per-call
// state, so Match is serialized.
type gazetteerIndex struct {
	mu      sync.Mutex
	terms   []string
	matcher *ahocorasick.Matcher
}

func newGazetteerIndex(entries []string) *gazetteerIndex {
	terms := make([]string, len(entries))
	for i, e := range entries {
		terms[i] = strings.ToLower(e)
	}
	return &gazetteerIndex{terms: terms, matcher: ahocorasick.NewStringMatcher(terms)}
}

func (g *gazetteerIndex) find(lower string) []string {
	g.mu.Lock()
	hits := g.matcher.Match([]byte(lower))
	g.mu.Unlock()

	found := make([]string, 0, len(hits))
	for _, i := range hits {
		if i < len(g.terms) && containsWord(lower, g.terms[i]) {
			found = append(found, g.terms[i])
		}
	}
	return found
}

// containsWord reports whether term occurs in text with no letter or digit
// directly before or after it.
func containsWord(text, term string) bool {
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-zA-Z'.-]+(?:\s+[A-Z][a-zA-Z'.-]+){1,2}\b`)

// phrases the capitalized heuristic tends to pick up that carry no signal
var phraseStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"to": {}, "how": {}, "why": {}, "what": {}, "who": {}, "week": {}, "this": {}, "your": {},
}

// ExtractKeywords returns lower-cased keywords found in the text: gazetteer hits
// plus two and three word capitalized phrases.
func ExtractKeywords(title, description string) []string {
	text := title + " " + description
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})

	for _, term := range gazetteerTerms.find(lower) {
		seen[term] = struct{}{}
	}

	for _, m := range capitalizedPhrase.FindAllString(text, -1) {
		words := strings.Fields(m)
		if _, stop := phraseStopwords[strings.ToLower(words[0])]; stop {
			words = words[1:]
		}
		if len(words) < 2 {
			continue
		}
		seen[strings.ToLower(strings.Join(words, " "))] = struct{}{}
	}

	return sortedKeys(seen)
}
