package domain

import (
	"encoding/json"
	"time"
)

// Resource is the canonical stored item. CanonicalURL is the dedup key.
type Resource struct {
	ID                int64           `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	CanonicalURL      string          `json:"canonical_url"`
	ImageURL          string          `json:"image_url"`
	ContentType       ContentType     `json:"content_type"`
	Category          string          `json:"category"`
	SourceDisplayName string          `json:"source_display_name"`
	Author            *string         `json:"author,omitempty"`
	Duration          *string         `json:"duration,omitempty"`
	ViewCount         *int64          `json:"view_count,omitempty"`
	PublishedAt       time.Time       `json:"published_at"`
	FetchedAt         time.Time       `json:"fetched_at"`
	Tags              []string        `json:"tags"`
	Keywords          []string        `json:"keywords"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
	Active            bool            `json:"active"`
}

// RawItem is what a fetcher hands to the upserter. Payload is kept opaque and
// only serialized for debugging.
type RawItem struct {
	ContentType ContentType
	Title       string
	Description string
	Link        string
	PublishedAt time.Time
	ImageURL    string
	Author      string
	Category    string
	Tags        []string
	Duration    string
	ViewCount   *int64
	Payload     any
}

type UpsertStatus string

const (
	UpsertNew     UpsertStatus = "new"
	UpsertUpdated UpsertStatus = "updated"
	UpsertSkipped UpsertStatus = "skipped"
)
