package safefetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps response bodies so a hostile endpoint cannot exhaust
// memory; explorer landing pages and RPC responses fit comfortably.
const maxBodyBytes = 8 << 20

func (g *Gate) do(ctx context.Context, method, rawURL string, body []byte, contentType string) ([]byte, error) {
	if ok, reason := g.Validate(ctx, rawURL); !ok {
		if g.observer != nil {
			g.observer.FetchBlocked(reason)
		}
		return nil, &FetchError{Reason: reason, Detail: rawURL}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, g.fail(ReasonInvalidURL, err.Error())
	}
	req.Header.Set("User-Agent", g.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, g.fail("timeout", ctx.Err().Error())
		}
		return nil, g.fail("connection_error", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, g.fail("read_error", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, g.fail(fmt.Sprintf("http_%d", resp.StatusCode), truncate(string(data), 200))
	}

	return data, nil
}

// fail records the failure with the observer and builds the typed error.
func (g *Gate) fail(reason, detail string) *FetchError {
	if g.observer != nil {
		g.observer.FetchFailed(reason)
	}
	return &FetchError{Reason: reason, Detail: detail}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
