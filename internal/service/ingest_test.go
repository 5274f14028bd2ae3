package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fantasy_ingest/internal/domain"
	"fantasy_ingest/internal/service/mocks"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	registry *mocks.MockSourceRegistry
	upserter *mocks.MockItemUpserter
	videos   *mocks.MockFetcher
	articles *mocks.MockFetcher

	orchestrator *Orchestrator
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockSourceRegistry(s.ctrl)
	s.upserter = mocks.NewMockItemUpserter(s.ctrl)
	s.videos = mocks.NewMockFetcher(s.ctrl)
	s.articles = mocks.NewMockFetcher(s.ctrl)

	s.videos.EXPECT().ContentType().Return(domain.ContentTypeVideo).AnyTimes()
	s.articles.EXPECT().ContentType().Return(domain.ContentTypeArticle).AnyTimes()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.orchestrator = NewOrchestrator(
		s.registry,
		s.upserter,
		[]Fetcher{s.videos, s.articles},
		OrchestratorConfig{FetchTimeout: time.Second},
		logger,
	)
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func articleSource(n int) domain.Source {
	return domain.Source{
		ID:          fmt.Sprintf("src-%d", n),
		ContentType: domain.ContentTypeArticle,
		Identifier:  fmt.Sprintf("https://feed%d.example.com/rss", n),
		DisplayName: fmt.Sprintf("Feed %d", n),
		Enabled:     true,
		PerRunLimit: 25,
	}
}

func itemsFor(src domain.Source, n int) []domain.RawItem {
	items := make([]domain.RawItem, n)
	for i := range items {
		items[i] = domain.RawItem{
			ContentType: src.ContentType,
			Title:       fmt.Sprintf("%s item %d", src.DisplayName, i),
			Link:        fmt.Sprintf("https://%s.example.com/%d", src.ID, i),
		}
	}
	return items
}

func (s *OrchestratorTestSuite) TestRunAll_FailingSourcesAreIsolated() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	sources := []domain.Source{articleSource(1), articleSource(2), articleSource(3), articleSource(4)}
	failing := map[string]bool{"src-2": true, "src-4": true}

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return(sources, nil)

	for _, src := range sources {
		if failing[src.ID] {
			s.articles.EXPECT().Fetch(gomock.Any(), src).Return(nil, errors.New("connection reset"))
			s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, false, 0, "connection reset").Return(nil)
			continue
		}
		s.articles.EXPECT().Fetch(gomock.Any(), src).Return(itemsFor(src, 2), nil)
		s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, true, 2, "").Return(nil)
	}
	s.upserter.EXPECT().Upsert(ctx, gomock.Any(), gomock.Any()).Return(domain.UpsertNew, nil).Times(4)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.False(outcome.Success)
	s.Len(outcome.Sources, 4)
	s.Len(outcome.Errors, 2)
	s.Equal(4, outcome.ItemsSeen)
	s.Equal(4, outcome.Created)
	s.True(strings.Contains(outcome.Errors[0], "Feed 2"))
	s.True(strings.Contains(outcome.Errors[0], "src-2"))
	s.True(strings.Contains(outcome.Errors[1], "src-4"))

	for _, so := range outcome.Sources {
		s.Equal(!failing[so.SourceID], so.Success, so.SourceID)
	}
}

func (s *OrchestratorTestSuite) TestRunAll_NewThenExistingItems() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	src := articleSource(1)
	items := itemsFor(src, 3)

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{src}, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), src).Return(items, nil)
	s.upserter.EXPECT().Upsert(ctx, items[0], src.DisplayName).Return(domain.UpsertNew, nil)
	s.upserter.EXPECT().Upsert(ctx, items[1], src.DisplayName).Return(domain.UpsertUpdated, nil)
	s.upserter.EXPECT().Upsert(ctx, items[2], src.DisplayName).Return(domain.UpsertSkipped, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, true, 2, "").Return(nil)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.True(outcome.Success)
	s.Equal(3, outcome.ItemsSeen)
	s.Equal(1, outcome.Created)
	s.Equal(1, outcome.Updated)
	s.Equal(1, outcome.Skipped)
	s.Empty(outcome.Errors)
}

func (s *OrchestratorTestSuite) TestRunAll_ItemErrorDoesNotStopSource() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	src := articleSource(1)
	items := itemsFor(src, 2)

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{src}, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), src).Return(items, nil)
	s.upserter.EXPECT().Upsert(ctx, items[0], src.DisplayName).
		Return(domain.UpsertStatus(""), &domain.ItemProcessingError{Link: items[0].Link, Err: errors.New("missing title")})
	s.upserter.EXPECT().Upsert(ctx, items[1], src.DisplayName).Return(domain.UpsertNew, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, true, 1, "").Return(nil)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.Equal(1, outcome.Created)
	s.Equal(1, outcome.Skipped)
	s.Len(outcome.Errors, 1)
	s.True(outcome.Sources[0].Success)
}

func (s *OrchestratorTestSuite) TestRunAll_UpserterPanicIsContained() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	src := articleSource(1)
	items := itemsFor(src, 2)

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{src}, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), src).Return(items, nil)
	s.upserter.EXPECT().Upsert(ctx, items[0], src.DisplayName).DoAndReturn(
		func(context.Context, domain.RawItem, string) (domain.UpsertStatus, error) {
			panic("boom")
		},
	)
	s.upserter.EXPECT().Upsert(ctx, items[1], src.DisplayName).Return(domain.UpsertNew, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, true, 1, "").Return(nil)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.Equal(1, outcome.Created)
	s.Len(outcome.Errors, 1)
	s.Contains(outcome.Errors[0], "boom")
}

func (s *OrchestratorTestSuite) TestRunAll_RecordOutcomeFailureIsIgnored() {
	ctx := context.Background()
	ct := domain.ContentTypeVideo
	src := domain.Source{ID: "v1", ContentType: ct, DisplayName: "Channel", Enabled: true, PerRunLimit: 5}

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{src}, nil)
	s.videos.EXPECT().Fetch(gomock.Any(), src).Return(nil, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, "v1", true, 0, "").Return(errors.New("db down"))

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.True(outcome.Success)
	s.Empty(outcome.Errors)
}

func (s *OrchestratorTestSuite) TestRunAll_ListFailure() {
	ctx := context.Background()
	ct := domain.ContentTypeVideo

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return(nil, errors.New("db down"))

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.False(outcome.Success)
	s.Len(outcome.Errors, 1)
}

func (s *OrchestratorTestSuite) TestRunAll_FetchTimeout() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	src := articleSource(1)
	s.orchestrator.config.FetchTimeout = 20 * time.Millisecond

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{src}, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), src).DoAndReturn(
		func(ctx context.Context, _ domain.Source) ([]domain.RawItem, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, false, 0, context.DeadlineExceeded.Error()).Return(nil)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.False(outcome.Success)
	s.False(outcome.Sources[0].Success)
}

func (s *OrchestratorTestSuite) TestRunSpecific_ReportsBadIDs() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	good := articleSource(1)
	disabled := articleSource(2)
	disabled.Enabled = false
	video := domain.Source{ID: "v1", ContentType: domain.ContentTypeVideo, Enabled: true}

	s.registry.EXPECT().GetByID(ctx, "missing").Return(nil, domain.ErrNotFound)
	s.registry.EXPECT().GetByID(ctx, good.ID).Return(&good, nil)
	s.registry.EXPECT().GetByID(ctx, disabled.ID).Return(&disabled, nil)
	s.registry.EXPECT().GetByID(ctx, video.ID).Return(&video, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), good).Return(nil, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, good.ID, true, 0, "").Return(nil)

	outcome := s.orchestrator.RunSpecific(ctx, ct, []string{"missing", good.ID, disabled.ID, video.ID})

	s.False(outcome.Success)
	s.Len(outcome.Sources, 1)
	s.Len(outcome.Errors, 3)
	s.Contains(outcome.Errors[0], "not found")
	s.Contains(outcome.Errors[1], "disabled")
	s.Contains(outcome.Errors[2], "content type")
}

func (s *OrchestratorTestSuite) TestRunStale_FiltersByContentType() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	stale := articleSource(1)
	video := domain.Source{ID: "v1", ContentType: domain.ContentTypeVideo, Enabled: true}

	s.registry.EXPECT().ListNeedingAttention(ctx, 48).Return([]domain.Source{stale, video}, nil)
	s.registry.EXPECT().GetByID(ctx, stale.ID).Return(&stale, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), stale).Return(itemsFor(stale, 1), nil)
	s.upserter.EXPECT().Upsert(ctx, gomock.Any(), stale.DisplayName).Return(domain.UpsertUpdated, nil)
	s.registry.EXPECT().RecordRunOutcome(ctx, stale.ID, true, 1, "").Return(nil)

	outcome := s.orchestrator.RunStale(ctx, ct, 48)

	s.True(outcome.Success)
	s.Equal(1, outcome.Updated)
	s.Len(outcome.Sources, 1)
}

func (s *OrchestratorTestSuite) TestRunAll_ConcurrentKeepsSourceOrder() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	s.orchestrator.config.Concurrency = 3

	sources := []domain.Source{articleSource(1), articleSource(2), articleSource(3), articleSource(4), articleSource(5)}
	s.registry.EXPECT().ListEnabled(ctx, &ct).Return(sources, nil)
	for _, src := range sources {
		s.articles.EXPECT().Fetch(gomock.Any(), src).Return(nil, nil)
		s.registry.EXPECT().RecordRunOutcome(ctx, src.ID, true, 0, "").Return(nil)
	}

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.Require().Len(outcome.Sources, 5)
	for i, so := range outcome.Sources {
		s.Equal(sources[i].ID, so.SourceID)
	}
}

func (s *OrchestratorTestSuite) TestRunAll_SequentialDelayFollowsPreviousSource() {
	ctx := context.Background()
	ct := domain.ContentTypeArticle
	s.orchestrator.config.SourceDelay = 30 * time.Millisecond

	first, second := articleSource(1), articleSource(2)
	var firstDone, secondStart time.Time

	s.registry.EXPECT().ListEnabled(ctx, &ct).Return([]domain.Source{first, second}, nil)
	s.articles.EXPECT().Fetch(gomock.Any(), first).DoAndReturn(
		func(context.Context, domain.Source) ([]domain.RawItem, error) {
			time.Sleep(60 * time.Millisecond)
			firstDone = time.Now()
			return nil, nil
		},
	)
	s.articles.EXPECT().Fetch(gomock.Any(), second).DoAndReturn(
		func(context.Context, domain.Source) ([]domain.RawItem, error) {
			secondStart = time.Now()
			return nil, nil
		},
	)
	s.registry.EXPECT().RecordRunOutcome(ctx, gomock.Any(), true, 0, "").Return(nil).Times(2)

	outcome := s.orchestrator.RunAll(ctx, ct)

	s.True(outcome.Success)
	s.GreaterOrEqual(secondStart.Sub(firstDone), 30*time.Millisecond)
}
