package classify

import "strings"

// GenericFallbackImage is used when neither the item nor its source provide one.
const GenericFallbackImage = "https://placehold.co/1200x630/0b3d2e/ffffff?text=Fantasy+Football"

// sourceFallbackImages maps lower-cased source display names to a branded placeholder.
var sourceFallbackImages = map[string]string{
	"fantasypros":             "https://placehold.co/1200x630/1f3a93/ffffff?text=FantasyPros",
	"espn fantasy":            "https://placehold.co/1200x630/cc0000/ffffff?text=ESPN+Fantasy",
	"rotoballer":              "https://placehold.co/1200x630/222222/ffffff?text=RotoBaller",
	"the fantasy footballers": "https://placehold.co/1200x630/f26522/ffffff?text=Fantasy+Footballers",
	"pff":                     "https://placehold.co/1200x630/000000/ffffff?text=PFF",
	"yahoo fantasy":           "https://placehold.co/1200x630/6001d2/ffffff?text=Yahoo+Fantasy",
	"cbs sports fantasy":      "https://placehold.co/1200x630/003087/ffffff?text=CBS+Fantasy",
	"rotowire":                "https://placehold.co/1200x630/b22222/ffffff?text=RotoWire",
}

// SourceFallbackImage returns the placeholder registered for a source name.
func SourceFallbackImage(sourceName string) (string, bool) {
	img, ok := sourceFallbackImages[strings.ToLower(strings.TrimSpace(sourceName))]
	return img, ok
}

// ResolveImage picks the first non-empty candidate, then the source placeholder,
// then the generic placeholder. The result is never empty.
func ResolveImage(sourceName string, candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if img, ok := SourceFallbackImage(sourceName); ok {
		return img
	}
	return GenericFallbackImage
}
