package hidroweb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"hidroweb-scraper/config"
	"hidroweb-scraper/utils"
)

// Heavy assets the portal pulls in that play no part in the download flow.
var blockedURLs = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*google-analytics.com*", "*googletagmanager.com*",
}

// Session is one headless browser tab opened on the series portal.
type Session struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	downloadDir string

	mu       sync.Mutex
	begins   chan *browser.EventDownloadWillBegin
	progress map[string]chan browser.DownloadProgressState
}

// NewSession prepares a session. Nothing is launched until Start.
func NewSession(cfg *config.Config, logger *utils.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		progress: make(map[string]chan browser.DownloadProgressState),
	}
}

// Start launches the browser, routes downloads into the scratch folder and
// opens the portal.
func (s *Session) Start(ctx context.Context) error {
	dir, err := filepath.Abs(s.cfg.ScratchDir)
	if err != nil {
		return fmt.Errorf("session: scratch dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("session: create scratch dir: %w", err)
	}
	s.downloadDir = dir

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[session] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(1366, 768),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	// The browser outlives any single caller context; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	s.ctx, s.cancel, s.allocCancel = tabCtx, cancel, allocCancel

	s.listen()

	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedURLs),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		return fmt.Errorf("session: launch browser: %w", err)
	}

	if err := s.Open(ctx); err != nil {
		s.Close()
		return err
	}
	return nil
}

// Open navigates to the portal, widening the wait on the second attempt.
func (s *Session) Open(ctx context.Context) error {
	return s.retry.Do(ctx, "open portal", func(attempt int) error {
		timeout := s.cfg.Timeouts.Navigate
		if attempt > 1 {
			timeout = s.cfg.Timeouts.NavigateRetry
		}
		s.logger.Info("[session] Opening %s (attempt %d, timeout %v)", s.cfg.PortalURL, attempt, timeout)
		return s.run(ctx, timeout,
			chromedp.Navigate(s.cfg.PortalURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	})
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.ctx = nil
}

func (s *Session) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			s.mu.Lock()
			s.progress[e.GUID] = make(chan browser.DownloadProgressState, 1)
			begins := s.begins
			s.mu.Unlock()
			if begins != nil {
				select {
				case begins <- e:
				default:
				}
			}
		case *browser.EventDownloadProgress:
			if e.State == browser.DownloadProgressStateInProgress {
				return
			}
			s.mu.Lock()
			ch := s.progress[e.GUID]
			s.mu.Unlock()
			if ch != nil {
				select {
				case ch <- e.State:
				default:
				}
			}
		}
	})
}

// run executes actions on the tab with a deadline, also stopping when the
// caller's ctx is cancelled.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.ctx == nil {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func by(loc Locator) chromedp.QueryOption {
	if loc.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *Session) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(loc.Query, by(loc)))
}

func (s *Session) IsEnabled(ctx context.Context, loc Locator) (bool, error) {
	var disabled, aria string
	var hasDisabled, hasAria bool
	err := s.run(ctx, time.Second,
		chromedp.AttributeValue(loc.Query, "disabled", &disabled, &hasDisabled, by(loc)),
		chromedp.AttributeValue(loc.Query, "aria-disabled", &aria, &hasAria, by(loc)),
	)
	if err != nil {
		return false, err
	}
	return !hasDisabled && !(hasAria && aria == "true"), nil
}

func (s *Session) Text(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	var text string
	err := s.run(ctx, timeout, chromedp.Text(loc.Query, &text, by(loc), chromedp.NodeVisible))
	return text, err
}

func (s *Session) Fill(ctx context.Context, loc Locator, value string, timeout time.Duration) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(loc.Query, by(loc)),
		chromedp.Clear(loc.Query, by(loc)),
	}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(loc.Query, value, by(loc)))
	}
	return s.run(ctx, timeout, actions...)
}

func (s *Session) PressEnter(ctx context.Context, loc Locator) error {
	return s.run(ctx, time.Second, chromedp.SendKeys(loc.Query, kb.Enter, by(loc)))
}

func (s *Session) Download(ctx context.Context, loc Locator, timeout time.Duration) (PendingDownload, error) {
	begins := make(chan *browser.EventDownloadWillBegin, 1)
	s.mu.Lock()
	s.begins = begins
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.begins = nil
		s.mu.Unlock()
	}()

	if err := s.run(ctx, loc.Timeout+time.Second, chromedp.Click(loc.Query, by(loc), chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("click %s: %w", loc.Name, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-begins:
		s.mu.Lock()
		states := s.progress[ev.GUID]
		s.mu.Unlock()
		return &chromeDownload{
			s:         s,
			guid:      ev.GUID,
			suggested: ev.SuggestedFilename,
			states:    states,
		}, nil
	case <-timer.C:
		return nil, ErrDownloadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) forget(guid string) {
	s.mu.Lock()
	delete(s.progress, guid)
	s.mu.Unlock()
}

// chromeDownload tracks a download the browser writes as <scratch>/<guid>.
type chromeDownload struct {
	s         *Session
	guid      string
	suggested string
	states    chan browser.DownloadProgressState
}

func (d *chromeDownload) SuggestedFilename() string { return d.suggested }

func (d *chromeDownload) SaveAs(ctx context.Context, path string) error {
	defer d.s.forget(d.guid)

	timer := time.NewTimer(d.s.cfg.Timeouts.DownloadFinish)
	defer timer.Stop()
	select {
	case state := <-d.states:
		if state != browser.DownloadProgressStateCompleted {
			return fmt.Errorf("download %s: %s", d.suggested, state)
		}
	case <-timer.C:
		_ = d.Cancel(ctx)
		return ErrDownloadTimeout
	case <-ctx.Done():
		_ = d.Cancel(context.WithoutCancel(ctx))
		return ctx.Err()
	}

	src := filepath.Join(d.s.downloadDir, d.guid)
	if err := os.Rename(src, path); err != nil {
		return fmt.Errorf("move download: %w", err)
	}
	return nil
}

func (d *chromeDownload) Cancel(ctx context.Context) error {
	defer d.s.forget(d.guid)
	err := d.s.run(ctx, 2*time.Second, browser.CancelDownload(d.guid))
	if rmErr := os.Remove(filepath.Join(d.s.downloadDir, d.guid)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return errors.Join(err, rmErr)
	}
	return err
}

// findChromeBinary locates a Chrome or Chromium executable on this machine.
func findChromeBinary() string {
	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
