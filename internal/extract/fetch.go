package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxFetchBytes       = 10 << 20
)

// Fetcher downloads documents linked from a mail body and returns their text.
type Fetcher struct {
	client *http.Client
	reader *DocumentReader
}

func NewFetcher(reader *DocumentReader, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{client: client, reader: reader}
}

// Fetch returns the text of a linked PDF or HTML page. Other content types
// yield ErrUnsupported.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasSuffix(strings.ToLower(resp.Request.URL.Path), ".pdf") {
		contentType = "application/pdf"
	}

	switch Kind(contentType, data) {
	case "pdf", "html":
		return f.reader.Text(contentType, data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
}
