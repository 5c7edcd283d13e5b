package fetch

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
)

// WasmMIME is the media type browsers require for streaming instantiation.
const WasmMIME = "application/wasm"

// Options configures a Fetcher.
type Options struct {
	// Client performs http and https requests. Nil uses a client without a
	// timeout of its own.
	Client *http.Client

	// MaxBytes caps the module size. 0 means unlimited.
	MaxBytes int64

	// Timeout bounds a single fetch. 0 means no timeout.
	Timeout time.Duration

	// RequireWasmMIME rejects http responses whose Content-Type is not
	// application/wasm.
	RequireWasmMIME bool
}

// Fetcher acquires module binaries by URL. Supported forms are http and
// https URLs, file URLs and bare filesystem paths.
type Fetcher struct {
	client      *http.Client
	maxBytes    int64
	timeout     time.Duration
	requireMIME bool
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:      client,
		maxBytes:    opts.MaxBytes,
		timeout:     opts.Timeout,
		requireMIME: opts.RequireWasmMIME,
	}
}

// Fetch returns the bytes addressed by rawURL. Every failure is a LoadError
// in the fetch phase.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.Fetch(errors.KindInvalidInput, rawURL, nil, "empty module URL")
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	Logger().Debug("fetched module",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("took", time.Since(start)))
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if isLocalPath(rawURL) {
		return f.fetchFile(rawURL, rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Fetch(errors.KindInvalidInput, rawURL, err, "parse URL")
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "file":
		return f.fetchFile(rawURL, u.Path)
	case "":
		return f.fetchFile(rawURL, filepath.FromSlash(rawURL))
	default:
		return nil, errors.New(errors.PhaseFetch, errors.KindUnsupported).
			URL(rawURL).
			Detail("unsupported scheme %q", u.Scheme).
			Build()
	}
}

// isLocalPath reports whether rawURL is an existing file named without a
// URL scheme. Such paths may not parse as URLs: C:\m.wasm or a%zz.wasm.
func isLocalPath(rawURL string) bool {
	if strings.Contains(rawURL, "://") {
		return false
	}
	info, err := os.Stat(rawURL)
	return err == nil && !info.IsDir()
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Fetch(errors.KindInvalidInput, rawURL, err, "build request")
	}
	req.Header.Set("Accept", WasmMIME)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Fetch(errors.KindNetwork, rawURL, err, "request module")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.HTTPStatus(rawURL, resp.StatusCode, resp.Status)
	}

	if f.requireMIME {
		mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if mt != WasmMIME {
			return nil, errors.New(errors.PhaseFetch, errors.KindInvalidData).
				URL(rawURL).
				Value(mt).
				Detail("incorrect response MIME type %q, expected %q", mt, WasmMIME).
				Build()
		}
	}

	return f.readAll(rawURL, resp.Body)
}

func (f *Fetcher) fetchFile(rawURL, path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Fetch(errors.KindNotFound, rawURL, err, "open module")
		}
		return nil, errors.Fetch(errors.KindInvalidInput, rawURL, err, "open module")
	}
	defer file.Close()

	return f.readAll(rawURL, file)
}

func (f *Fetcher) readAll(rawURL string, r io.Reader) ([]byte, error) {
	if f.maxBytes > 0 {
		r = io.LimitReader(r, f.maxBytes+1)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Fetch(errors.KindNetwork, rawURL, err, "read module")
	}
	if f.maxBytes > 0 && int64(buf.Len()) > f.maxBytes {
		return nil, errors.TooLarge(rawURL, f.maxBytes)
	}
	if buf.Len() == 0 {
		return nil, errors.Fetch(errors.KindInvalidData, rawURL, nil, "empty module")
	}

	// buf goes back to the pool; hand the caller its own copy
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}
