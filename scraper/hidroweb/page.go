package hidroweb

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDownloadTimeout = errors.New("download did not start in time")
	ErrSessionClosed   = errors.New("browser session is not running")
)

// Page is the slice of a browser tab the downloader needs. Session
// implements it on top of chromedp; tests use an in-memory fake.
type Page interface {
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	IsEnabled(ctx context.Context, loc Locator) (bool, error)
	Text(ctx context.Context, loc Locator, timeout time.Duration) (string, error)
	Fill(ctx context.Context, loc Locator, value string, timeout time.Duration) error
	PressEnter(ctx context.Context, loc Locator) error
	// Download clicks loc and waits up to timeout for the browser to begin
	// a download.
	Download(ctx context.Context, loc Locator, timeout time.Duration) (PendingDownload, error)
}

// PendingDownload is a download the browser has started but not yet handed
// over.
type PendingDownload interface {
	SuggestedFilename() string
	SaveAs(ctx context.Context, path string) error
	Cancel(ctx context.Context) error
}
