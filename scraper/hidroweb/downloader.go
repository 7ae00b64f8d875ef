package hidroweb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hidroweb-scraper/config"
	"hidroweb-scraper/models"
	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

const (
	keyPause       = 100 * time.Millisecond
	resubmitPause  = 300 * time.Millisecond
	emptyCellPause = 200 * time.Millisecond
)

// Downloader fetches the archive of one station at a time through a Page.
type Downloader struct {
	page     Page
	scratch  string
	dest     string
	timeouts config.Timeouts
	locators Locators
	logger   *utils.Logger
	sleep    func(context.Context, time.Duration)
}

// NewDownloader returns a Downloader that stages files in scratch and places
// finished archives in dest.
func NewDownloader(page Page, scratch, dest string, timeouts config.Timeouts, logger *utils.Logger) *Downloader {
	return &Downloader{
		page:     page,
		scratch:  scratch,
		dest:     dest,
		timeouts: timeouts,
		locators: DefaultLocators(timeouts),
		logger:   logger,
		sleep:    pause,
	}
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process searches the portal for code, confirms the result belongs to it
// and downloads its archive. It never returns an error: every failure is
// folded into the outcome.
func (d *Downloader) Process(ctx context.Context, code string, attempt int) (out models.DownloadOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = models.Transient(code, fmt.Sprintf("panic: %v", r))
		}
	}()

	out = d.process(ctx, code)
	switch out.Kind {
	case models.OutcomeDownloaded:
		if out.Unchanged {
			d.logger.Info("[downloader] %s unchanged, kept %s", code, filepath.Base(out.Path))
		} else {
			d.logger.Info("[downloader] %s saved to %s", code, out.Path)
		}
	case models.OutcomeTransient:
		d.logger.Warn("[downloader] %s failed on attempt %d: %s", code, attempt, out.Reason)
	default:
		d.logger.Info("[downloader] %s %s: %s", code, out.Kind, out.Reason)
	}
	return out
}

func (d *Downloader) process(ctx context.Context, code string) models.DownloadOutcome {
	if n, err := storage.ClearStaleScratch(d.scratch, code); err != nil {
		d.logger.Warn("[downloader] Could not clear scratch folder: %v", err)
	} else if n > 0 {
		d.logger.Debug("[downloader] Removed %d stale scratch files", n)
	}

	input, ok := d.locators.SearchInput.First(ctx, d.visible)
	if !ok {
		return models.Transient(code, "search field not available")
	}
	if err := d.submit(ctx, input, code); err != nil {
		return models.Transient(code, err.Error())
	}

	if _, ok := d.locators.ResultsTable.First(ctx, d.visible); !ok {
		return models.NotFound(code, "no results table")
	}
	if _, ok := d.locators.CSVButton.First(ctx, d.actionable); !ok {
		return models.NotFound(code, "no download control")
	}

	confirmed, err := d.confirmStation(ctx, input, code)
	if err != nil {
		return models.Transient(code, err.Error())
	}
	if !confirmed {
		return models.NotFound(code, "displayed station does not match")
	}

	button, ok := d.locators.CSVRecheck.First(ctx, d.actionable)
	if !ok {
		return models.NotFound(code, "download control disappeared")
	}

	return d.download(ctx, button, code)
}

func (d *Downloader) submit(ctx context.Context, input Locator, code string) error {
	if err := d.page.Fill(ctx, input, "", input.Timeout); err != nil {
		return fmt.Errorf("clear search field: %w", err)
	}
	d.sleep(ctx, keyPause)
	if err := d.page.Fill(ctx, input, code, input.Timeout); err != nil {
		return fmt.Errorf("type station code: %w", err)
	}
	d.sleep(ctx, keyPause)
	if err := d.page.PressEnter(ctx, input); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	d.sleep(ctx, keyPause)
	return nil
}

// confirmStation reads the code shown in the first result row and re-submits
// the search when it belongs to another station.
func (d *Downloader) confirmStation(ctx context.Context, input Locator, code string) (bool, error) {
	tries := d.timeouts.ValidationTries
	if tries < 1 {
		tries = 1
	}
	for i := 1; i <= tries; i++ {
		shown := d.displayedCode(ctx)
		switch {
		case shown == code:
			return true, nil
		case shown != "":
			d.logger.Debug("[downloader] Portal shows %s while looking for %s (try %d/%d)", shown, code, i, tries)
			if err := d.submit(ctx, input, code); err != nil {
				return false, err
			}
			d.sleep(ctx, resubmitPause)
		default:
			d.sleep(ctx, emptyCellPause)
		}
	}
	return false, nil
}

func (d *Downloader) displayedCode(ctx context.Context) string {
	for _, loc := range d.locators.StationCell {
		text, err := d.page.Text(ctx, loc, loc.Timeout)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

func (d *Downloader) download(ctx context.Context, button Locator, code string) models.DownloadOutcome {
	pending, err := d.page.Download(ctx, button, d.timeouts.DownloadStart)
	if err != nil {
		return models.Transient(code, err.Error())
	}

	suggested := pending.SuggestedFilename()
	if got, ok := storage.StationFromSuggested(suggested); !ok || got != code {
		if err := pending.Cancel(ctx); err != nil {
			d.logger.Debug("[downloader] Cancel of %q failed: %v", suggested, err)
		}
		return models.Transient(code, fmt.Sprintf("portal served %q", suggested))
	}

	if err := os.MkdirAll(d.scratch, 0755); err != nil {
		return models.Transient(code, err.Error())
	}
	tmp := filepath.Join(d.scratch, filepath.Base(suggested))
	if err := pending.SaveAs(ctx, tmp); err != nil {
		return models.Transient(code, err.Error())
	}

	t := d.timeouts
	if _, err := storage.WaitForStableFile(ctx, tmp, t.FileStable, t.FilePoll, t.StableWindow); err != nil {
		return models.Transient(code, err.Error())
	}
	if err := storage.VerifyZip(tmp); err != nil {
		_ = os.Remove(tmp)
		return models.Transient(code, err.Error())
	}
	hasCotas, err := storage.ArchiveHasMember(tmp, storage.CotasSuffix)
	if err != nil {
		_ = os.Remove(tmp)
		return models.Transient(code, err.Error())
	}
	if !hasCotas {
		_ = os.Remove(tmp)
		return models.NoData(code, "archive has no water-level series")
	}

	placed, err := storage.PlaceArchive(tmp, d.dest, code)
	if err != nil {
		return models.Transient(code, err.Error())
	}
	return models.Downloaded(code, placed.Path, placed.Unchanged)
}

func (d *Downloader) visible(ctx context.Context, loc Locator) bool {
	return d.page.WaitVisible(ctx, loc, loc.Timeout) == nil
}

func (d *Downloader) actionable(ctx context.Context, loc Locator) bool {
	if !d.visible(ctx, loc) {
		return false
	}
	enabled, err := d.page.IsEnabled(ctx, loc)
	return err == nil && enabled
}
