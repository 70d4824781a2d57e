// Package fetcher retrieves source documents over HTTP. Redirects are
// followed manually so the hop limit and missing-Location cases are explicit,
// and the PDF signature is verified after transfer so a bad payload never
// consumes retry budget.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/renderq/renderq/internal/retry"
	"github.com/renderq/renderq/internal/validation"
	"github.com/renderq/renderq/pkg/domain"
)

// MaxRedirects caps the manual redirect chain.
const MaxRedirects = 5

// pdfSignature is the binary prefix every well-formed PDF carries.
var pdfSignature = []byte("%PDF-")

// Result is a successfully fetched document.
type Result struct {
	Content     []byte
	ContentType string
}

type Fetcher struct {
	client   *http.Client
	policy   retry.Policy
	maxBytes int64
	logger   *slog.Logger
}

func New(client *http.Client, policy retry.Policy, maxBytes int64, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Redirects are followed manually in fetchOnce; stop the client from
	// chasing them on its own.
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{client: &c, policy: policy, maxBytes: maxBytes, logger: logger}
}

// Fetch downloads rawURL through the retry executor and validates the result
// against the PDF signature. The signature check is an application-level
// failure, distinct from transport failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source URL is not parseable")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	safeURL := validation.SanitizeURL(rawURL)
	f.logger.Debug("fetching document", "url", safeURL)

	res, err := retry.Do(ctx, f.policy, func(ctx context.Context) (*Result, error) {
		return f.fetchOnce(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(res.Content, pdfSignature) {
		return nil, &domain.ContentError{Reason: "downloaded content is not a PDF document"}
	}
	f.logger.Info("document fetched", "url", safeURL, "bytes", len(res.Content))
	return res, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Result, error) {
	current := rawURL
	for hop := 0; ; hop++ {
		if hop > MaxRedirects {
			return nil, fmt.Errorf("redirect limit of %d exceeded", MaxRedirects)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &domain.TransportError{Err: err}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if loc == "" {
				return nil, fmt.Errorf("redirect response missing Location header")
			}
			next, err := url.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("redirect Location is not parseable")
			}
			base, _ := url.Parse(current)
			current = base.ResolveReference(next).String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, &domain.StatusError{Code: resp.StatusCode}
		}

		content, err := f.readBody(resp)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		return &Result{Content: content, ContentType: resp.Header.Get("Content-Type")}, nil
	}
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	r := resp.Body
	if f.maxBytes > 0 {
		limited := io.LimitReader(resp.Body, f.maxBytes+1)
		content, err := io.ReadAll(limited)
		if err != nil {
			return nil, &domain.TransportError{Err: err}
		}
		if int64(len(content)) > f.maxBytes {
			return nil, &domain.ContentError{Reason: fmt.Sprintf("document exceeds the %d byte limit", f.maxBytes)}
		}
		return content, nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	return content, nil
}
