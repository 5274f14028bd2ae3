package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"fantasy_ingest/internal/classify"
	"fantasy_ingest/internal/domain"
)

const (
	watchURLPrefix   = "https://www.youtube.com/watch?v="
	thumbnailPattern = "https://i.ytimg.com/vi/%s/hqdefault.jpg"
	maxVideoIDsBatch = 50
	// the API caps playlistItems pages at 50 entries
	maxPlaylistPageSize = 50
)

// Config holds YouTube Data API configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Fetcher pulls the most recent uploads of a channel.
type Fetcher struct {
	service *yt.Service
	timeout time.Duration
	logger  *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Fetcher, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &Fetcher{
		service: service,
		timeout: cfg.Timeout,
		logger:  logger.With("fetcher", "youtube"),
	}, nil
}

func (f *Fetcher) ContentType() domain.ContentType {
	return domain.ContentTypeVideo
}

// Fetch returns up to PerRunLimit recent uploads of the channel in source.Identifier.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source) ([]domain.RawItem, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	logger := f.logger.With("source", source.ID)

	playlistID, err := f.uploadsPlaylist(ctx, source.Identifier)
	if err != nil {
		return nil, err
	}

	entries, ids, err := f.recentUploads(ctx, playlistID, source.PerRunLimit, logger)
	if err != nil {
		return nil, err
	}

	details, err := f.videoDetails(ctx, ids)
	if err != nil {
		logger.Warn("video details unavailable", "error", err)
		details = map[string]*yt.Video{}
	}

	items := make([]domain.RawItem, 0, len(entries))
	for _, it := range entries {
		items = append(items, f.transform(it, details[videoID(it)], source))
	}

	logger.Debug("fetched videos", "count", len(items))
	return items, nil
}

// recentUploads pages through the uploads playlist until limit entries with a
// video id are collected or the playlist ends.
func (f *Fetcher) recentUploads(ctx context.Context, playlistID string, limit int, logger *slog.Logger) ([]*yt.PlaylistItem, []string, error) {
	entries := make([]*yt.PlaylistItem, 0, limit)
	ids := make([]string, 0, limit)

	pageToken := ""
	for len(entries) < limit {
		call := f.service.PlaylistItems.
			List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(int64(min(limit-len(entries), maxPlaylistPageSize))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, nil, fmt.Errorf("list playlist items: %w", err)
		}

		for _, it := range resp.Items {
			if len(entries) == limit {
				break
			}
			id := videoID(it)
			if id == "" {
				logger.Debug("skipping playlist entry without video id")
				continue
			}
			entries = append(entries, it)
			ids = append(ids, id)
		}

		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	return entries, ids, nil
}

func (f *Fetcher) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	resp, err := f.service.Channels.
		List([]string{"contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("list channel: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel %s not found", channelID)
	}

	cd := resp.Items[0].ContentDetails
	if cd == nil || cd.RelatedPlaylists == nil || cd.RelatedPlaylists.Uploads == "" {
		return "", errors.New("channel has no uploads playlist")
	}
	return cd.RelatedPlaylists.Uploads, nil
}

func (f *Fetcher) videoDetails(ctx context.Context, ids []string) (map[string]*yt.Video, error) {
	out := make(map[string]*yt.Video, len(ids))
	for start := 0; start < len(ids); start += maxVideoIDsBatch {
		end := min(start+maxVideoIDsBatch, len(ids))

		resp, err := f.service.Videos.
			List([]string{"snippet", "contentDetails", "statistics"}).
			Id(ids[start:end]...).
			Context(ctx).
			Do()
		if err != nil {
			return out, fmt.Errorf("list videos: %w", err)
		}
		for _, v := range resp.Items {
			out[v.Id] = v
		}
	}
	return out, nil
}

func (f *Fetcher) transform(it *yt.PlaylistItem, video *yt.Video, source domain.Source) domain.RawItem {
	id := videoID(it)
	snippet := it.Snippet

	item := domain.RawItem{
		ContentType: domain.ContentTypeVideo,
		Link:        watchURLPrefix + id,
		ImageURL:    fmt.Sprintf(thumbnailPattern, id),
		Payload:     it,
	}

	if snippet != nil {
		item.Title = snippet.Title
		item.Description = snippet.Description
		item.Author = snippet.VideoOwnerChannelTitle
		if item.Author == "" {
			item.Author = snippet.ChannelTitle
		}
		if thumb := bestThumbnail(snippet.Thumbnails); thumb != "" {
			item.ImageURL = thumb
		}
		item.PublishedAt = parseTime(snippet.PublishedAt)
	}
	if it.ContentDetails != nil && it.ContentDetails.VideoPublishedAt != "" {
		if t := parseTime(it.ContentDetails.VideoPublishedAt); !t.IsZero() {
			item.PublishedAt = t
		}
	}

	var videoTags []string
	if video != nil {
		if video.ContentDetails != nil {
			item.Duration = formatDuration(video.ContentDetails.Duration)
		}
		if video.Statistics != nil {
			views := int64(video.Statistics.ViewCount)
			item.ViewCount = &views
		}
		if video.Snippet != nil {
			videoTags = video.Snippet.Tags
		}
		item.Payload = video
	}

	if source.Category != nil {
		item.Category = *source.Category
	} else {
		item.Category = classify.VideoRules.Classify(item.Title + " " + item.Description)
	}
	item.Tags = classify.MergeTags(classify.ExtractTags(item.Title, item.Description), classify.ExtractTags(strings.Join(videoTags, " "), ""))

	return item
}

func videoID(it *yt.PlaylistItem) string {
	if it.ContentDetails != nil && it.ContentDetails.VideoId != "" {
		return it.ContentDetails.VideoId
	}
	if it.Snippet != nil && it.Snippet.ResourceId != nil {
		return it.Snippet.ResourceId.VideoId
	}
	return ""
}

// bestThumbnail prefers the largest rendition available.
func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
