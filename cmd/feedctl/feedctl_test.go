package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantasy_ingest/internal/domain"
	"fantasy_ingest/testdata/utils"
)

func TestParseSeed(t *testing.T) {
	data := []byte(`
sources:
  - content_type: video
    identifier: UCabcdefghijklmnopqrstuv
    display_name: FantasyPros
    per_run_limit: 10
  - content_type: article
    identifier: https://example.com/feed.xml
    display_name: Example Feed
    enabled: false
    category: Dynasty
`)

	specs, err := parseSeed(data)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, domain.ContentTypeVideo, specs[0].ContentType)
	assert.Equal(t, 10, specs[0].PerRunLimit)
	assert.Nil(t, specs[0].Enabled)

	assert.Equal(t, domain.ContentTypeArticle, specs[1].ContentType)
	require.NotNil(t, specs[1].Enabled)
	assert.False(t, *specs[1].Enabled)
	require.NotNil(t, specs[1].Category)
	assert.Equal(t, "Dynasty", *specs[1].Category)
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := parseSeed([]byte("sources: ["))
	assert.ErrorContains(t, err, "parse seed file")

	_, err = parseSeed([]byte("sources: []"))
	assert.ErrorContains(t, err, "no sources")
}

func TestRenderSources(t *testing.T) {
	now := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	renderSources(&buf, []domain.Source{
		{
			ID:            "a1",
			ContentType:   domain.ContentTypeArticle,
			DisplayName:   "Example Feed",
			Identifier:    "https://example.com/feed.xml",
			Enabled:       true,
			PerRunLimit:   25,
			LastSuccessAt: utils.Ptr(now.Add(-90 * time.Minute)),
		},
		{
			ID:                    "v1",
			ContentType:           domain.ContentTypeVideo,
			DisplayName:           "FantasyPros",
			PerRunLimit:           10,
			ConsecutiveErrorCount: 2,
			LastError:             utils.Ptr("quota exceeded"),
		},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "Example Feed")
	assert.Contains(t, out, "1h30m0s ago")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "quota exceeded")
	// footers are upper-cased by the table style
	assert.Contains(t, strings.ToLower(out), "2 sources")
}

func TestOutcomeSummary(t *testing.T) {
	assert.Equal(t, "-", outcomeSummary(nil))
	assert.Equal(t, "ok +3 ~1 !0", outcomeSummary(&domain.RunOutcome{Success: true, Created: 3, Updated: 1}))
	assert.Equal(t, "failed +0 ~0 !2", outcomeSummary(&domain.RunOutcome{Skipped: 2}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestSelectTypes(t *testing.T) {
	all, err := selectTypes("")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypes(), all)

	one, err := selectTypes("rss")
	require.NoError(t, err)
	assert.Equal(t, []domain.ContentType{domain.ContentTypeArticle}, one)

	_, err = selectTypes("podcast")
	assert.Error(t, err)
}
