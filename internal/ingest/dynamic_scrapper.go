package ingest

import (
	"context"
	"fmt"

	"github.com/btr-supply/chomp/internal/model"
)

// HeadlessDriver is the narrow surface chomp needs from a browser
// automation backend (spec.md §4.6 "dynamic_scrapper: render via a
// headless browser, then apply the same selector grammar as
// static_scrapper"). No headless-browser client (chromedp, Rod,
// Playwright-Go, ...) appears anywhere in the dependency pack chomp was
// built from, so DynamicScrapperFetcher is wired against this interface
// rather than a concrete driver; a deployment that needs JS-rendered
// pages supplies its own Driver implementation.
type HeadlessDriver interface {
	// RenderedHTML navigates to target, waits for the page to settle,
	// and returns its fully rendered DOM serialization.
	RenderedHTML(ctx context.Context, target string) (string, error)
}

// DynamicScrapperFetcher reuses StaticScrapperFetcher's selector grammar
// against a Driver-rendered DOM instead of the raw HTTP response body.
type DynamicScrapperFetcher struct {
	Driver HeadlessDriver
}

// NewDynamicScrapperFetcher builds a fetcher over driver.
func NewDynamicScrapperFetcher(driver HeadlessDriver) *DynamicScrapperFetcher {
	return &DynamicScrapperFetcher{Driver: driver}
}

func (f *DynamicScrapperFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	if f.Driver == nil {
		return fmt.Errorf("dynamic_scrapper: no headless driver configured for ingester %q", ing.Name)
	}

	rendered := map[string]string{}
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		body, ok := rendered[field.Target]
		if !ok {
			var err error
			body, err = f.Driver.RenderedHTML(ctx, field.Target)
			if err != nil {
				return fmt.Errorf("dynamic_scrapper: render %s: %w", field.Target, err)
			}
			rendered[field.Target] = body
		}
		doc, err := parseHTMLString(body)
		if err != nil {
			continue
		}
		field.Value = selectText(doc, field.Selector)
	}
	return nil
}
