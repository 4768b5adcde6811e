package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// FetchAll fetches the complete body of a URL into memory. The configured
// MaxResponseSize still applies.
func (c *Client) FetchAll(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", ObfuscateURL(url), resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", ObfuscateURL(url), err)
	}
	return data, nil
}

// FetchPrefix fetches at most n bytes from the start of a URL using a Range
// request. Servers that ignore the Range header and answer 200 get the same
// treatment: the read stops after n bytes and the rest of the body is
// discarded. Callers never receive more than the prefix they asked for, so
// range support on the origin only changes how much is transferred, not the
// result.
func (c *Client) FetchPrefix(ctx context.Context, url string, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("prefix size must be positive, got %d", n)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(HeaderRange, fmt.Sprintf("bytes=0-%d", n-1))

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
		// 200 means the server ignored the Range header; a bounded read keeps
		// the download at n bytes either way.
	default:
		return nil, fmt.Errorf("fetching prefix of %s: unexpected status %d", ObfuscateURL(url), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, n))
	if err != nil {
		return nil, fmt.Errorf("reading prefix of %s: %w", ObfuscateURL(url), err)
	}
	return data, nil
}
