package hidroweb

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"time"
)

var errMissing = errors.New("element not present")

// fakePage simulates the portal. Locators are matched by Name.
type fakePage struct {
	visible  map[string]bool
	disabled map[string]bool

	// shown is consumed one entry per station-cell read; the last entry
	// repeats once the slice is exhausted.
	shown []string
	reads int

	suggested string
	archive   []byte
	startErr  error

	fills     []string
	enters    int
	cancelled bool
}

func newFakePage(code string, archive []byte) *fakePage {
	return &fakePage{
		visible: map[string]bool{
			"search input":              true,
			"results table":             true,
			"csv button":                true,
			"station cell (structural)": true,
		},
		disabled:  map[string]bool{},
		shown:     []string{code},
		suggested: "Estacao_" + code + "_CSV_2024-03-01T10-00-00.zip",
		archive:   archive,
	}
}

func (f *fakePage) WaitVisible(_ context.Context, loc Locator, _ time.Duration) error {
	if f.visible[loc.Name] {
		return nil
	}
	return errMissing
}

func (f *fakePage) IsEnabled(_ context.Context, loc Locator) (bool, error) {
	return !f.disabled[loc.Name], nil
}

func (f *fakePage) Text(_ context.Context, loc Locator, _ time.Duration) (string, error) {
	if !f.visible[loc.Name] {
		return "", errMissing
	}
	i := f.reads
	if i >= len(f.shown) {
		i = len(f.shown) - 1
	}
	f.reads++
	return " " + f.shown[i] + " ", nil
}

func (f *fakePage) Fill(_ context.Context, _ Locator, value string, _ time.Duration) error {
	if value != "" {
		f.fills = append(f.fills, value)
	}
	return nil
}

func (f *fakePage) PressEnter(context.Context, Locator) error {
	f.enters++
	return nil
}

func (f *fakePage) Download(context.Context, Locator, time.Duration) (PendingDownload, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &fakeDownload{page: f}, nil
}

type fakeDownload struct {
	page *fakePage
}

func (d *fakeDownload) SuggestedFilename() string { return d.page.suggested }

func (d *fakeDownload) SaveAs(_ context.Context, path string) error {
	return os.WriteFile(path, d.page.archive, 0644)
}

func (d *fakeDownload) Cancel(context.Context) error {
	d.page.cancelled = true
	return nil
}

func zipBytes(members map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, _ := zw.Create(name)
		_, _ = w.Write([]byte(body))
	}
	_ = zw.Close()
	return buf.Bytes()
}

func noSleep(context.Context, time.Duration) {}
