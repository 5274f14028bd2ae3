package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ContentType identifies which kind of content a source produces.
type ContentType string

const (
	ContentTypeVideo   ContentType = "video"
	ContentTypeArticle ContentType = "article"
)

// ContentTypes lists every content type in the order the scheduler runs them.
func ContentTypes() []ContentType {
	return []ContentType{ContentTypeVideo, ContentTypeArticle}
}

func (c ContentType) Valid() bool {
	return c == ContentTypeVideo || c == ContentTypeArticle
}

// ParseContentType accepts the canonical names plus a couple of common aliases.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "videos", "youtube":
		return ContentTypeVideo, nil
	case "article", "articles", "rss":
		return ContentTypeArticle, nil
	}
	return "", &ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", s)}
}

const (
	DefaultPerRunLimit = 25
	MinPerRunLimit     = 1
	MaxPerRunLimit     = 100
)

var channelIDPattern = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

type Source struct {
	ID                    string      `db:"id" json:"id"`
	ContentType           ContentType `db:"content_type" json:"content_type"`
	Identifier            string      `db:"identifier" json:"identifier"`
	DisplayName           string      `db:"display_name" json:"display_name"`
	Enabled               bool        `db:"enabled" json:"enabled"`
	Category              *string     `db:"category" json:"category,omitempty"`
	PerRunLimit           int         `db:"per_run_limit" json:"per_run_limit"`
	LastSuccessAt         *time.Time  `db:"last_success_at" json:"last_success_at,omitempty"`
	ConsecutiveErrorCount int         `db:"consecutive_error_count" json:"consecutive_error_count"`
	LastError             *string     `db:"last_error" json:"last_error,omitempty"`
	LastItemsProcessed    int         `db:"last_items_processed" json:"last_items_processed"`
	CreatedAt             time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time   `db:"updated_at" json:"updated_at"`
}

// NeedsAttention reports whether the source should be prioritized for re-ingestion.
func (s *Source) NeedsAttention(now time.Time, staleAfter time.Duration) bool {
	if !s.Enabled {
		return false
	}
	if s.LastSuccessAt == nil || s.ConsecutiveErrorCount > 0 {
		return true
	}
	return now.Sub(*s.LastSuccessAt) > staleAfter
}

// SourceSpec is the input for creating a source. It doubles as the seed file entry.
type SourceSpec struct {
	ContentType ContentType `yaml:"content_type" json:"content_type"`
	Identifier  string      `yaml:"identifier" json:"identifier"`
	DisplayName string      `yaml:"display_name" json:"display_name"`
	Enabled     *bool       `yaml:"enabled" json:"enabled,omitempty"`
	Category    *string     `yaml:"category" json:"category,omitempty"`
	PerRunLimit int         `yaml:"per_run_limit" json:"per_run_limit,omitempty"`
}

// Normalize trims input and fills defaults. It never rewrites the identifier
// beyond surrounding whitespace.
func (s SourceSpec) Normalize() SourceSpec {
	s.Identifier = strings.TrimSpace(s.Identifier)
	s.DisplayName = strings.TrimSpace(s.DisplayName)
	if s.Category != nil {
		c := strings.TrimSpace(*s.Category)
		if c == "" {
			s.Category = nil
		} else {
			s.Category = &c
		}
	}
	if s.PerRunLimit == 0 {
		s.PerRunLimit = DefaultPerRunLimit
	}
	return s
}

func (s SourceSpec) Validate() error {
	if !s.ContentType.Valid() {
		return &ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", s.ContentType)}
	}
	if s.DisplayName == "" {
		return &ValidationError{Field: "display_name", Message: "display name is required"}
	}
	if err := ValidatePerRunLimit(s.PerRunLimit); err != nil {
		return err
	}
	return ValidateIdentifier(s.ContentType, s.Identifier)
}

// SourcePatch carries optional updates; nil fields are left untouched.
type SourcePatch struct {
	Identifier  *string `json:"identifier,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
	Category    *string `json:"category,omitempty"`
	PerRunLimit *int    `json:"per_run_limit,omitempty"`
}

// Apply returns a copy of src with the patch applied and validated.
func (p SourcePatch) Apply(src Source) (Source, error) {
	if p.Identifier != nil {
		src.Identifier = strings.TrimSpace(*p.Identifier)
	}
	if p.DisplayName != nil {
		src.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
	if p.Enabled != nil {
		src.Enabled = *p.Enabled
	}
	if p.Category != nil {
		c := strings.TrimSpace(*p.Category)
		if c == "" {
			src.Category = nil
		} else {
			src.Category = &c
		}
	}
	if p.PerRunLimit != nil {
		src.PerRunLimit = *p.PerRunLimit
	}

	if src.DisplayName == "" {
		return src, &ValidationError{Field: "display_name", Message: "display name is required"}
	}
	if err := ValidatePerRunLimit(src.PerRunLimit); err != nil {
		return src, err
	}
	if err := ValidateIdentifier(src.ContentType, src.Identifier); err != nil {
		return src, err
	}
	return src, nil
}

func ValidatePerRunLimit(n int) error {
	if n < MinPerRunLimit || n > MaxPerRunLimit {
		return &ValidationError{
			Field:   "per_run_limit",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinPerRunLimit, MaxPerRunLimit, n),
		}
	}
	return nil
}

// ValidateIdentifier checks the identifier shape for the given content type:
// a channel id for video sources, an absolute http(s) URL for article sources.
func ValidateIdentifier(ct ContentType, identifier string) error {
	if identifier == "" {
		return &ValidationError{Field: "identifier", Message: "identifier is required"}
	}

	switch ct {
	case ContentTypeVideo:
		if !channelIDPattern.MatchString(identifier) {
			return &ValidationError{Field: "identifier", Message: fmt.Sprintf("%q is not a valid channel id", identifier)}
		}
	case ContentTypeArticle:
		u, err := url.Parse(identifier)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "identifier", Message: fmt.Sprintf("%q is not a valid feed url", identifier)}
		}
	default:
		return &ValidationError{Field: "content_type", Message: fmt.Sprintf("unknown content type %q", ct)}
	}
	return nil
}

// SourceStats is the aggregate view of the registry used by health checks.
type SourceStats struct {
	Total    int `db:"total" json:"total"`
	Enabled  int `db:"enabled" json:"enabled"`
	Erroring int `db:"erroring" json:"erroring"`
	Stale    int `db:"stale" json:"stale"`
	Never    int `db:"never" json:"never"`
}
