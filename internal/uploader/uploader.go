// Package uploader pushes page artifacts to per-artifact signed destination
// URLs under bounded parallelism. Outcomes are collected into an
// index-addressable slice so the response order is the request order by
// construction, whatever the completion order was.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/renderq/renderq/internal/retry"
	"github.com/renderq/renderq/internal/validation"
	"github.com/renderq/renderq/pkg/domain"
)

// DefaultConcurrency is the upload worker budget.
const DefaultConcurrency = 5

type Uploader struct {
	client      *http.Client
	policy      retry.Policy
	concurrency int
	logger      *slog.Logger
}

func New(client *http.Client, policy retry.Policy, concurrency int, logger *slog.Logger) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, policy: policy, concurrency: concurrency, logger: logger}
}

// UploadAll uploads artifacts concurrently and returns their destination
// locations in the artifacts' original order, with authorization query
// parameters stripped. If any artifact fails after retry exhaustion the whole
// call fails with one deduplicated summary.
func (u *Uploader) UploadAll(ctx context.Context, destBase string, artifacts []string) ([]string, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts to upload")
	}
	base, err := url.Parse(destBase)
	if err != nil {
		return nil, fmt.Errorf("destination URL is not parseable")
	}

	outcomes := make([]domain.UploadOutcome, len(artifacts))
	sem := make(chan struct{}, u.concurrency)
	var wg sync.WaitGroup

	for i, artifact := range artifacts {
		wg.Add(1)
		go func(i int, artifact string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			target := deriveTargetURL(base, i+1, filepath.Ext(artifact))
			loc, err := u.uploadOne(ctx, target, artifact)
			outcomes[i] = domain.UploadOutcome{Index: i, Location: loc, Err: err}
		}(i, artifact)
	}
	wg.Wait()

	// outcomes is already index-ordered; the sort keeps that invariant
	// explicit even if collection ever changes shape.
	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].Index < outcomes[b].Index })

	locations := make([]string, 0, len(outcomes))
	var failures []string
	seen := map[string]bool{}
	for _, o := range outcomes {
		if o.Err != nil {
			msg := o.Err.Error()
			if !seen[msg] {
				seen[msg] = true
				failures = append(failures, msg)
			}
			continue
		}
		locations = append(locations, o.Location)
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("%d of %d uploads failed: %s",
			len(artifacts)-len(locations), len(artifacts), strings.Join(failures, "; "))
	}
	return locations, nil
}

func (u *Uploader) uploadOne(ctx context.Context, target *url.URL, artifact string) (string, error) {
	content, err := os.ReadFile(artifact)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(artifact))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = retry.Do(ctx, u.policy, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(content))
		if err != nil {
			return struct{}{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = int64(len(content))

		resp, err := u.client.Do(req)
		if err != nil {
			return struct{}{}, &domain.TransportError{Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, &domain.StatusError{Code: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	if err != nil {
		u.logger.Warn("artifact upload failed",
			"target", validation.SanitizeURL(target.String()), "err", err)
		return "", err
	}
	return validation.SanitizeURL(target.String()), nil
}

// deriveTargetURL appends the deterministic page-<n> filename to the
// destination base path with exactly one separating slash, preserving the
// base's authorization query parameters.
func deriveTargetURL(base *url.URL, page int, ext string) *url.URL {
	if ext == "" {
		ext = ".png"
	}
	target := *base
	target.Path = strings.TrimRight(base.Path, "/") + fmt.Sprintf("/page-%d%s", page, ext)
	return &target
}
