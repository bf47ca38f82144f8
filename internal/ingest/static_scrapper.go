package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/btr-supply/chomp/internal/model"
)

// parseHTMLString parses an in-memory HTML document, shared with
// DynamicScrapperFetcher which renders via a headless driver instead of
// fetching raw bytes.
func parseHTMLString(body string) (*html.Node, error) {
	return html.Parse(strings.NewReader(body))
}

// StaticScrapperFetcher fetches a static HTML document per declared
// Target and applies each field's CSS-ish Selector (spec.md §4.6
// "static_scrapper: fetch once, select text/attr from the DOM"). The
// selector grammar chomp supports is a small subset: "tag#id",
// "tag.class", and "tag.class@attr" for attribute extraction; anything
// richer is expected to move to dynamic_scrapper.
type StaticScrapperFetcher struct {
	Client *http.Client
	Policy FetchPolicy
}

// NewStaticScrapperFetcher builds a fetcher using the spec's default
// fetch policy.
func NewStaticScrapperFetcher() *StaticScrapperFetcher {
	return NewStaticScrapperFetcherWithPolicy(DefaultFetchPolicy())
}

// NewStaticScrapperFetcherWithPolicy builds a fetcher over an explicit
// policy, letting the Lifecycle Controller apply CLI/config overrides.
func NewStaticScrapperFetcherWithPolicy(policy FetchPolicy) *StaticScrapperFetcher {
	return &StaticScrapperFetcher{Client: &http.Client{Timeout: policy.Timeout}, Policy: policy}
}

// Fetch gets one document per distinct Target, retrying each with
// exponential backoff; a target that still fails after retries leaves
// every field bound to it nil rather than aborting siblings bound to
// other targets (spec.md §7 error kind 3).
func (f *StaticScrapperFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	docs := map[string]*html.Node{}
	failed := map[string]error{}

	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		if _, tried := failed[field.Target]; tried {
			continue
		}
		doc, ok := docs[field.Target]
		if !ok {
			target := field.Target
			err := withRetry(ctx, f.Policy, func() error {
				var fetchErr error
				doc, fetchErr = f.fetchDoc(ctx, target)
				return fetchErr
			})
			if err != nil {
				failed[field.Target] = err
				continue
			}
			docs[field.Target] = doc
		}
		field.Value = selectText(doc, field.Selector)
	}
	if len(docs) == 0 && len(failed) > 0 {
		for _, err := range failed {
			return fmt.Errorf("static_scrapper: all targets failed: %w", err)
		}
	}
	return nil
}

func (f *StaticScrapperFetcher) fetchDoc(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("static_scrapper: %s returned %d", url, resp.StatusCode)
	}
	return html.Parse(resp.Body)
}

// selectText walks the parsed document and returns the first matching
// node's text (or attribute, for a "tag@attr" selector).
func selectText(doc *html.Node, selector string) any {
	tag, id, class, attr := parseSelector(selector)
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && (tag == "" || n.Data == tag) && matchesIDClass(n, id, class) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == nil {
		return nil
	}
	if attr != "" {
		for _, a := range found.Attr {
			if a.Key == attr {
				return a.Val
			}
		}
		return nil
	}
	return strings.TrimSpace(nodeText(found))
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func matchesIDClass(n *html.Node, id, class string) bool {
	if id == "" && class == "" {
		return true
	}
	for _, a := range n.Attr {
		if id != "" && a.Key == "id" && a.Val == id {
			return true
		}
		if class != "" && a.Key == "class" && strings.Contains(" "+a.Val+" ", " "+class+" ") {
			return true
		}
	}
	return false
}

// parseSelector splits "tag#id.class@attr" into its parts; every part is
// optional except tag, which may also be empty (match any element).
func parseSelector(selector string) (tag, id, class, attr string) {
	if i := strings.IndexByte(selector, '@'); i >= 0 {
		attr = selector[i+1:]
		selector = selector[:i]
	}
	if i := strings.IndexByte(selector, '#'); i >= 0 {
		rest := selector[i+1:]
		selector = selector[:i]
		if j := strings.IndexByte(rest, '.'); j >= 0 {
			id, class = rest[:j], rest[j+1:]
		} else {
			id = rest
		}
	} else if i := strings.IndexByte(selector, '.'); i >= 0 {
		class = selector[i+1:]
		selector = selector[:i]
	}
	tag = selector
	return
}
