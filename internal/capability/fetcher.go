package capability

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pageforge/pageforge/pkg/schema"
)

// maxReferenceBytes caps how much of a reference page is read. Style signals
// live in the head and early body; trailing content only inflates prompts.
const maxReferenceBytes = 512 * 1024

// HTTPFetcher implements ReferenceFetcher with a plain HTTP GET and an
// optional ReferenceCache in front.
type HTTPFetcher struct {
	client *http.Client
	cache  *ReferenceCache
}

// NewHTTPFetcher creates a fetcher. cache may be nil to disable memoization.
func NewHTTPFetcher(client *http.Client, cache *ReferenceCache) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, cache: cache}
}

// Fetch retrieves the raw content of a reference URL, serving from cache
// when fresh.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cache != nil {
		if content, ok := f.cache.Get(url); ok {
			return content, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid reference url %q: %s", url, err.Error()).WithCause(err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")
	req.Header.Set("User-Agent", "pageforge/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeUpstream, "fetch %s: %s", url, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", schema.NewErrorf(ClassifyStatus(resp.StatusCode), "fetch %s: status %d", url, resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeUpstream, "read %s: %s", url, err.Error()).WithCause(err)
	}

	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "reference %s returned empty content", url)
	}

	if f.cache != nil {
		f.cache.Put(url, content)
	}
	return content, nil
}
