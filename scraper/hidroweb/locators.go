package hidroweb

import (
	"context"
	"time"

	"hidroweb-scraper/config"
)

// Locator addresses one element of the portal, either by CSS selector or by
// XPath, with its own wait budget.
type Locator struct {
	Name    string
	Query   string
	XPath   bool
	Timeout time.Duration
}

// LocatorChain is an ordered list of alternatives for the same element.
type LocatorChain []Locator

// First returns the first locator for which probe succeeds.
func (c LocatorChain) First(ctx context.Context, probe func(context.Context, Locator) bool) (Locator, bool) {
	for _, loc := range c {
		if ctx.Err() != nil {
			return Locator{}, false
		}
		if probe(ctx, loc) {
			return loc, true
		}
	}
	return Locator{}, false
}

// Locators groups the chains used while processing a station.
type Locators struct {
	SearchInput  LocatorChain
	ResultsTable LocatorChain
	CSVButton    LocatorChain
	CSVRecheck   LocatorChain
	StationCell  LocatorChain
}

const (
	firstRow = "#mat-tab-content-0-0 > div > ana-card > mat-card > mat-card-content > " +
		"ana-dados-convencionais-list > div > div.mat-elevation-z8.example-container > table > tbody > tr:nth-child(1)"

	csvButtonStructural = firstRow +
		" > td.mat-cell.cdk-column-csv.mat-column-csv.mat-table-sticky.ng-star-inserted > button"
	csvButtonGeneric = `//td[contains(@class,"mat-column-csv")]//button | ` +
		`//button[contains(@mattooltip,"CSV") or contains(@title,"CSV") or contains(normalize-space(.),"CSV")]`

	stationCellStructural = firstRow + " > td.mat-cell.cdk-column-id.mat-column-id.ng-star-inserted > a"
	stationCellXPath      = `//*[@id="mat-tab-content-0-0"]/div/ana-card/mat-card/mat-card-content/` +
		`ana-dados-convencionais-list/div/div[1]/table/tbody/tr[1]/td[2]/a`
)

// DefaultLocators returns the selectors known to match the series portal.
func DefaultLocators(t config.Timeouts) Locators {
	return Locators{
		SearchInput: LocatorChain{
			{Name: "search input", Query: "#mat-input-0", Timeout: t.SearchInput},
			{Name: "search input (xpath)", Query: `//*[@id="mat-input-0"]`, XPath: true, Timeout: t.SearchInput},
		},
		ResultsTable: LocatorChain{
			{Name: "results table", Query: "table.mat-table", Timeout: t.ResultsTable},
		},
		CSVButton: LocatorChain{
			{Name: "csv button", Query: "td.mat-column-csv button", Timeout: 1500 * time.Millisecond},
			{Name: "csv button (structural)", Query: csvButtonStructural, Timeout: time.Second},
			{Name: "csv button (generic)", Query: csvButtonGeneric, XPath: true, Timeout: time.Second},
		},
		CSVRecheck: LocatorChain{
			{Name: "csv button", Query: "td.mat-column-csv button", Timeout: time.Second},
			{Name: "csv button (structural)", Query: csvButtonStructural, Timeout: 800 * time.Millisecond},
		},
		StationCell: LocatorChain{
			{Name: "station cell (structural)", Query: stationCellStructural, Timeout: t.StationCell},
			{Name: "station cell (xpath)", Query: stationCellXPath, XPath: true, Timeout: t.StationCell},
			{Name: "station cell", Query: "td.mat-column-id a", Timeout: t.StationCell},
		},
	}
}
