// Package converter wraps the external document-rendering engine. The engine
// is an opaque collaborator: given raw PDF bytes it answers with ordered page
// images and a manifest, or fails.
package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/renderq/renderq/pkg/domain"
)

// Options tune a single conversion.
type Options struct {
	DPI    int
	Format string
}

// Output is one completed conversion: image paths ordered by page number.
type Output struct {
	Images    []string
	PageCount int
	Metadata  map[string]any
}

// Engine renders a document into page images inside workDir.
type Engine interface {
	Convert(ctx context.Context, doc []byte, workDir, requestID string, opts Options) (*Output, error)
}

type manifest struct {
	PageCount int            `json:"pageCount"`
	Metadata  map[string]any `json:"metadata"`
}

// HTTPEngine talks to a rendering service over HTTP: multipart request in,
// zip of page images plus manifest.json out.
type HTTPEngine struct {
	baseURL  string
	client   *http.Client
	maxPages int
	logger   *slog.Logger
}

func NewHTTPEngine(baseURL string, client *http.Client, maxPages int, logger *slog.Logger) *HTTPEngine {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPEngine{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		maxPages: maxPages,
		logger:   logger,
	}
}

func (e *HTTPEngine) Convert(ctx context.Context, doc []byte, workDir, requestID string, opts Options) (*Output, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", requestID+".pdf")
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	if opts.DPI > 0 {
		_ = writer.WriteField("dpi", strconv.Itoa(opts.DPI))
	}
	if opts.Format != "" {
		_ = writer.WriteField("format", opts.Format)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/forms/pdf/render", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &domain.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	archive, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	out, err := e.unpack(archive, workDir)
	if err != nil {
		return nil, err
	}
	e.logger.Info("conversion finished", "requestId", requestID, "pages", out.PageCount)
	return out, nil
}

// unpack extracts page images and the manifest from the engine's zip reply.
// Entry names are constrained to flat page-<n>.<ext> files; anything else in
// the archive is rejected.
func (e *HTTPEngine) unpack(archive []byte, workDir string) (*Output, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &domain.ContentError{Reason: "engine reply is not a valid archive"}
	}

	var m manifest
	type page struct {
		index int
		path  string
	}
	var pages []page

	for _, f := range zr.File {
		name := f.Name
		if name == "manifest.json" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open manifest: %w", err)
			}
			err = json.NewDecoder(rc).Decode(&m)
			_ = rc.Close()
			if err != nil {
				return nil, &domain.ContentError{Reason: "engine manifest is not valid JSON"}
			}
			continue
		}

		idx, ok := pageIndex(name)
		if !ok {
			return nil, &domain.ContentError{Reason: fmt.Sprintf("unexpected archive entry %q", name)}
		}
		dst := filepath.Join(workDir, name)
		if err := extractFile(f, dst); err != nil {
			return nil, err
		}
		pages = append(pages, page{index: idx, path: dst})
	}

	if len(pages) == 0 {
		return nil, &domain.ContentError{Reason: "engine produced no page images"}
	}
	if e.maxPages > 0 && len(pages) > e.maxPages {
		return nil, &domain.ContentError{Reason: fmt.Sprintf("document has %d pages, limit is %d", len(pages), e.maxPages)}
	}

	if m.PageCount > 0 && m.PageCount != len(pages) {
		return nil, &domain.ContentError{
			Reason: fmt.Sprintf("engine manifest claims %d pages, archive has %d", m.PageCount, len(pages)),
		}
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })
	out := &Output{PageCount: len(pages), Metadata: m.Metadata}
	for _, p := range pages {
		out.Images = append(out.Images, p.path)
	}
	return out, nil
}

// pageIndex parses a flat "page-<n>.<ext>" entry name. Names with path
// separators or traversal segments never match.
func pageIndex(name string) (int, bool) {
	if strings.ContainsAny(name, `/\`) || !strings.HasPrefix(name, "page-") {
		return 0, false
	}
	stem := strings.TrimPrefix(name, "page-")
	dot := strings.IndexByte(stem, '.')
	if dot <= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(stem[:dot])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extract %q: %w", f.Name, err)
	}
	return nil
}
