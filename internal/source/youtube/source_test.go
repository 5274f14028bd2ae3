package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantasy_ingest/internal/domain"
)

const channelID = "UCabcdefghijklmnopqrstuv"

const playlistJSON = `{
  "items": [
    {
      "snippet": {
        "title": "Week 5 Waiver Wire Pickups",
        "description": "Best RB adds for PPR leagues",
        "publishedAt": "2025-10-01T14:00:00Z",
        "channelTitle": "Fantasy Channel",
        "resourceId": {"kind": "youtube#video", "videoId": "vid1"},
        "thumbnails": {
          "default": {"url": "https://i.ytimg.com/vi/vid1/default.jpg"},
          "high": {"url": "https://i.ytimg.com/vi/vid1/hqdefault.jpg"},
          "maxres": {"url": "https://i.ytimg.com/vi/vid1/maxresdefault.jpg"}
        }
      },
      "contentDetails": {"videoId": "vid1", "videoPublishedAt": "2025-10-01T13:00:00Z"}
    },
    {
      "snippet": {
        "title": "Dynasty Rookie Rankings",
        "description": "",
        "publishedAt": "2025-09-30T10:00:00Z",
        "resourceId": {"kind": "youtube#video", "videoId": "vid2"}
      }
    },
    {
      "snippet": {"title": "Deleted video"}
    }
  ]
}`

const videosJSON = `{
  "items": [
    {
      "id": "vid1",
      "snippet": {"tags": ["superflex"]},
      "contentDetails": {"duration": "PT12M5S"},
      "statistics": {"viewCount": "1500"}
    }
  ]
}`

func newTestServer(t *testing.T, channelBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, channelID, r.URL.Query().Get("id"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key")+r.Header.Get("X-Goog-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, channelBody)
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UUuploads", r.URL.Query().Get("playlistId"))
		assert.Equal(t, "10", r.URL.Query().Get("maxResults"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, playlistJSON)
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, videosJSON)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()

	f, err := New(context.Background(), Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return f
}

func testSource() domain.Source {
	return domain.Source{
		ID:          "src-1",
		ContentType: domain.ContentTypeVideo,
		Identifier:  channelID,
		DisplayName: "Fantasy Channel",
		Enabled:     true,
		PerRunLimit: 10,
	}
}

func TestFetch_MapsPlaylistEntries(t *testing.T) {
	srv := newTestServer(t, `{"items":[{"id":"`+channelID+`","contentDetails":{"relatedPlaylists":{"uploads":"UUuploads"}}}]}`)
	f := newTestFetcher(t, srv)

	items, err := f.Fetch(context.Background(), testSource())
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, domain.ContentTypeVideo, first.ContentType)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", first.Link)
	assert.Equal(t, "https://i.ytimg.com/vi/vid1/maxresdefault.jpg", first.ImageURL)
	assert.Equal(t, time.Date(2025, 10, 1, 13, 0, 0, 0, time.UTC), first.PublishedAt.UTC())
	assert.Equal(t, "Waiver Wire", first.Category)
	assert.Equal(t, "12:05", first.Duration)
	require.NotNil(t, first.ViewCount)
	assert.Equal(t, int64(1500), *first.ViewCount)
	assert.Contains(t, first.Tags, "PPR")
	assert.Contains(t, first.Tags, "Superflex")
	assert.Equal(t, "Fantasy Channel", first.Author)

	second := items[1]
	assert.Equal(t, "https://i.ytimg.com/vi/vid2/hqdefault.jpg", second.ImageURL)
	assert.Equal(t, "Dynasty", second.Category)
	assert.Nil(t, second.ViewCount)
}

func TestFetch_SourceCategoryOverrides(t *testing.T) {
	srv := newTestServer(t, `{"items":[{"id":"`+channelID+`","contentDetails":{"relatedPlaylists":{"uploads":"UUuploads"}}}]}`)
	f := newTestFetcher(t, srv)

	src := testSource()
	category := "Highlights"
	src.Category = &category

	items, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, "Highlights", it.Category)
	}
}

func TestFetch_UnknownChannel(t *testing.T) {
	srv := newTestServer(t, `{"items":[]}`)
	f := newTestFetcher(t, srv)

	_, err := f.Fetch(context.Background(), testSource())
	assert.ErrorContains(t, err, "not found")
}

func TestFetch_MissingUploadsPlaylist(t *testing.T) {
	srv := newTestServer(t, `{"items":[{"id":"`+channelID+`","contentDetails":{}}]}`)
	f := newTestFetcher(t, srv)

	_, err := f.Fetch(context.Background(), testSource())
	assert.ErrorContains(t, err, "uploads playlist")
}

func TestFetch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	}))
	t.Cleanup(srv.Close)
	f := newTestFetcher(t, srv)

	_, err := f.Fetch(context.Background(), testSource())
	assert.Error(t, err)
}

func playlistPage(start, count int, next string) string {
	items := make([]string, 0, count)
	for i := start; i < start+count; i++ {
		items = append(items, fmt.Sprintf(
			`{"snippet":{"title":"Video %d","resourceId":{"videoId":"v%d"}}}`, i, i))
	}
	return fmt.Sprintf(`{"nextPageToken":%q,"items":[%s]}`, next, strings.Join(items, ","))
}

func TestFetch_PagesPastFiftyEntries(t *testing.T) {
	var (
		mu         sync.Mutex
		maxResults []string
		pageTokens []string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"id":"`+channelID+`","contentDetails":{"relatedPlaylists":{"uploads":"UUuploads"}}}]}`)
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		maxResults = append(maxResults, r.URL.Query().Get("maxResults"))
		pageTokens = append(pageTokens, r.URL.Query().Get("pageToken"))
		mu.Unlock()

		n, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		n = min(n, 50)
		switch r.URL.Query().Get("pageToken") {
		case "":
			_, _ = io.WriteString(w, playlistPage(0, n, "page-2"))
		case "page-2":
			_, _ = io.WriteString(w, playlistPage(50, n, "page-3"))
		default:
			_, _ = io.WriteString(w, playlistPage(100, n, ""))
		}
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := testSource()
	src.PerRunLimit = 75

	items, err := newTestFetcher(t, srv).Fetch(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, items, 75)
	assert.Equal(t, "https://www.youtube.com/watch?v=v74", items[74].Link)
	assert.Equal(t, []string{"50", "25"}, maxResults)
	assert.Equal(t, []string{"", "page-2"}, pageTokens)
}

func TestFetch_StopsAtLastPage(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[{"id":"`+channelID+`","contentDetails":{"relatedPlaylists":{"uploads":"UUuploads"}}}]}`)
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, playlistPage(0, 3, ""))
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := testSource()
	src.PerRunLimit = 100

	items, err := newTestFetcher(t, srv).Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFormatDuration(t *testing.T) {
	cases := map[string]string{
		"PT12M5S":  "12:05",
		"PT1H2M3S": "1:02:03",
		"PT45S":    "0:45",
		"PT2H":     "2:00:00",
		"P1D":      "P1D",
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatDuration(in), in)
	}
}
