package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/scrollsettle/config"
	"github.com/use-agent/scrollsettle/models"
)

func newTestScraper(conn *fakeConnector) *Scraper {
	return NewScraper(conn, config.BrowserConfig{
		RemoteURL:            "ws://browser.test:3000?token=secret",
		ConnectRetries:       2,
		ConnectBaseDelay:     time.Millisecond,
		BlockedResourceTypes: []string{"Image", "Font"},
	}, testScraperConfig(), nil)
}

// fastJob observes with short windows so tests finish quickly.
func fastJob(url string) JobConfig {
	return JobConfig{
		URL:               url,
		MaxScrolls:        5,
		ScrollDelay:       20 * time.Millisecond,
		IdleStable:        10 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		Timeout:           5 * time.Second,
		NavigationTimeout: time.Second,
		SettleDelay:       time.Millisecond,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		Metric:            MetricNodes,
		ExtractRetries:    2,
		ExtractMinLength:  100,
		ExtractBackoff:    time.Millisecond,
	}
}

func scrapeCode(t *testing.T, err error) string {
	t.Helper()
	var se *models.ScrapeError
	require.True(t, errors.As(err, &se), "expected *models.ScrapeError, got %T: %v", err, err)
	return se.Code
}

func TestRun_ConvergesAndReleasesOnce(t *testing.T) {
	page := newFakePage(seq(100, 140, 180, 180, 180))
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://example.com/feed")
	job.BlockResources = true
	job.Headers = map[string]string{"X-Trace": "t1"}
	job.UserAgent = "scrollsettle-test"

	res, err := s.Run(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, res.Converged())
	assert.False(t, res.TimedOut())
	assert.Equal(t, 180, res.Outcome.FinalMetric)
	assert.Equal(t, MethodDocument, res.Extraction.Method)
	assert.Equal(t, page.html, res.HTML)
	assert.Equal(t, "Feed", res.Title)
	assert.Equal(t, "https://example.com/feed?page=final", res.FinalURL)
	assert.Equal(t, MetricNodes, res.Metric)
	assert.True(t, page.unmarked)
	assert.Equal(t, [2]int{1280, 800}, page.viewport)
	assert.Equal(t, "scrollsettle-test", page.identity.UserAgent)
	assert.Equal(t, "t1", page.identity.Headers["X-Trace"])
	assert.Contains(t, page.identity.Headers["Referer"], "example.com")
	assert.Equal(t, []string{"Image", "Font"}, conn.sessions[0].opts.BlockedResourceTypes)
	assert.GreaterOrEqual(t, res.Elapsed, res.ConvergenceElapsed)

	info := res.ConvergenceInfo()
	assert.True(t, info.Converged)
	assert.Equal(t, "stable", info.Outcome)
	assert.Equal(t, "document", info.Extraction)

	assert.Equal(t, 1, conn.connectCount())
	conn.assertReleased(t)
	assert.Zero(t, s.ActiveJobs())
}

func TestRun_InvalidURLNeverConnects(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "example.com/feed"} {
		conn := &fakeConnector{}
		s := newTestScraper(conn)

		_, err := s.Run(context.Background(), fastJob(u))

		assert.Equal(t, models.ErrCodeInvalidInput, scrapeCode(t, err), "url %q", u)
		assert.Zero(t, conn.connectCount())
	}
}

func TestRun_ConnectionFailure(t *testing.T) {
	conn := &fakeConnector{failFirst: 100}
	s := newTestScraper(conn)

	_, err := s.Run(context.Background(), fastJob("https://example.com"))

	assert.Equal(t, models.ErrCodeConnection, scrapeCode(t, err))
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 2, conn.connectCount())
	assert.Zero(t, s.ActiveJobs())
}

func TestRun_PageOpenFailureReleasesSession(t *testing.T) {
	conn := &fakeConnector{pageErr: errors.New("Target.createTarget: browser has no contexts")}
	s := newTestScraper(conn)

	_, err := s.Run(context.Background(), fastJob("https://example.com"))

	assert.Equal(t, models.ErrCodeConnection, scrapeCode(t, err))
	conn.assertReleased(t)
}

func TestRun_NavigationFailureReleasesOnce(t *testing.T) {
	page := newFakePage(constant(1))
	page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	_, err := s.Run(context.Background(), fastJob("https://nowhere.invalid"))

	assert.Equal(t, models.ErrCodeNavigation, scrapeCode(t, err))
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	conn.assertReleased(t)
}

func TestRun_NavigationTimeoutIsOwnBound(t *testing.T) {
	page := newFakePage(constant(1))
	page.navBlock = true
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://slow.example.com")
	job.NavigationTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := s.Run(context.Background(), job)

	assert.Equal(t, models.ErrCodeTimeout, scrapeCode(t, err))
	assert.Less(t, time.Since(start), job.Timeout)
	conn.assertReleased(t)
}

func TestRun_NeverStableTimesOutWithContent(t *testing.T) {
	page := newFakePage(growing)
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://example.com/live")
	job.MaxScrolls = 100000
	job.Timeout = 300 * time.Millisecond

	start := time.Now()
	res, err := s.Run(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, res.TimedOut())
	assert.False(t, res.Converged())
	assert.Equal(t, MethodDocument, res.Extraction.Method)
	assert.Less(t, time.Since(start), 3*time.Second)
	conn.assertReleased(t)
}

func TestRun_NeverStableExhaustsAttempts(t *testing.T) {
	page := newFakePage(growing)
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://example.com/live")
	job.MaxScrolls = 3

	res, err := s.Run(context.Background(), job)

	require.NoError(t, err)
	assert.False(t, res.Converged())
	assert.False(t, res.TimedOut())
	assert.Equal(t, StateExhausted, res.Outcome.State)
	assert.Equal(t, 3, res.Outcome.Attempts)
}

func TestRun_PageClosedMidObservation(t *testing.T) {
	page := newFakePage(growing)
	page.closeAtRead = 3
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	res, err := s.Run(context.Background(), fastJob("https://example.com/feed"))

	require.NoError(t, err)
	assert.Equal(t, StateDetached, res.Outcome.State)
	assert.False(t, res.Converged())
	assert.Equal(t, MethodPageClosed, res.Extraction.Method)
	assert.Equal(t, PageClosedHTML, res.HTML)
	assert.Equal(t, "https://example.com/feed", res.FinalURL)
	assert.Equal(t, 2, page.readCount())
	conn.assertReleased(t)
}

func TestRun_ExtractionFailureIsDegradedSuccess(t *testing.T) {
	page := newFakePage(constant(10))
	page.html = "<html></html>"
	page.rootMarkup = "<html></html>"
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	res, err := s.Run(context.Background(), fastJob("https://example.com/blank"))

	require.NoError(t, err)
	assert.True(t, res.Converged())
	assert.Equal(t, MethodFailed, res.Extraction.Method)
	assert.Equal(t, ExtractionFailedHTML, res.HTML)
	conn.assertReleased(t)
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	page := newFakePage(constant(1))
	page.panicOnLocate = true
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	res, err := s.Run(context.Background(), fastJob("https://example.com"))

	assert.Nil(t, res)
	assert.Equal(t, models.ErrCodeInternal, scrapeCode(t, err))
	assert.Contains(t, err.Error(), "locate exploded")
	conn.assertReleased(t)
	assert.Zero(t, s.ActiveJobs())
}

func TestRun_StuckDetectorFailsAfterGrace(t *testing.T) {
	old := abandonGrace
	abandonGrace = 50 * time.Millisecond
	defer func() { abandonGrace = old }()

	page := newFakePage(constant(1))
	page.stuck = make(chan struct{})
	defer close(page.stuck)
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://example.com/hang")
	job.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := s.Run(context.Background(), job)

	assert.Equal(t, models.ErrCodeTimeout, scrapeCode(t, err))
	assert.Less(t, time.Since(start), 2*time.Second)
	conn.assertReleased(t)
}

func TestScraper_RemoteURLIsRedacted(t *testing.T) {
	s := newTestScraper(&fakeConnector{})
	assert.Equal(t, "ws://browser.test:3000", s.RemoteURL())
}

func TestRun_RemovesOverlaysBeforeLocatingAndBlocksAds(t *testing.T) {
	page := newFakePage(constant(120))
	conn := &fakeConnector{newPage: func() *fakePage { return page }}
	s := newTestScraper(conn)

	job := fastJob("https://example.com/feed")
	job.RemoveOverlays = true
	job.BlockAds = true

	res, err := s.Run(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, res.Converged())
	assert.Equal(t, []string{"navigate", "overlays", "locate"}, page.calls())
	require.Len(t, conn.sessions, 1)
	assert.True(t, conn.sessions[0].opts.BlockAds)
	assert.Nil(t, conn.sessions[0].opts.BlockedResourceTypes)
	conn.assertReleased(t)
}

func TestRun_OverlaysKeptByDefault(t *testing.T) {
	page := newFakePage(constant(120))
	conn := &fakeConnector{newPage: func() *fakePage { return page }}

	_, err := newTestScraper(conn).Run(context.Background(), fastJob("https://example.com/feed"))

	require.NoError(t, err)
	assert.Equal(t, []string{"navigate", "locate"}, page.calls())
	assert.False(t, conn.sessions[0].opts.BlockAds)
}

func TestRun_ConnectsOnThirdAttempt(t *testing.T) {
	conn := &fakeConnector{failFirst: 2}
	s := NewScraper(conn, config.BrowserConfig{
		RemoteURL:        "ws://browser.test:3000",
		ConnectRetries:   3,
		ConnectBaseDelay: time.Millisecond,
	}, testScraperConfig(), nil)

	res, err := s.Run(context.Background(), fastJob("https://example.com/feed"))

	require.NoError(t, err)
	assert.True(t, res.Converged())
	assert.Equal(t, MethodDocument, res.Extraction.Method)
	assert.Equal(t, 3, conn.connectCount())
	require.Len(t, conn.sessions, 1)
	assert.Equal(t, 1, conn.sessions[0].disconnectCount())
	conn.assertReleased(t)
	assert.Zero(t, s.ActiveJobs())
}
