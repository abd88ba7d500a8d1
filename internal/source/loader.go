package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxBytes is the largest image body the loader accepts.
	DefaultMaxBytes = 25 << 20
	// DefaultUserAgent is sent with every HTTP image request.
	DefaultUserAgent = "imgcaption"
)

var (
	// ErrTooLarge is returned when an image body exceeds the size limit.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrLocalDisabled is returned for file:// URLs and bare paths when the
	// loader only serves remote images.
	ErrLocalDisabled = errors.New("local files are not allowed")
)

// LoadError reports a failure to fetch or decode an image.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load image from %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Image is a decoded source image together with its encoded bytes.
type Image struct {
	image.Image
	URL    string
	Format Format
	MIME   string
	Data   []byte
}

// Loader fetches and decodes an image.
type Loader interface {
	Load(ctx context.Context, rawURL string) (*Image, error)
}

// RemoteOnly wraps next so that only http and https URLs reach it. Every
// other scheme, and a bare path, fails with a LoadError.
func RemoteOnly(next Loader) Loader {
	return LoaderFunc(func(ctx context.Context, rawURL string) (*Image, error) {
		if err := checkRemote(rawURL); err != nil {
			return nil, err
		}
		return next.Load(ctx, rawURL)
	})
}

func checkRemote(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &LoadError{URL: rawURL, Err: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	case "", "file":
		return &LoadError{URL: rawURL, Err: ErrLocalDisabled}
	default:
		return &LoadError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, rawURL string) (*Image, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, rawURL string) (*Image, error) {
	return f(ctx, rawURL)
}

// HTTPConfig holds the configuration for an HTTPLoader.
type HTTPConfig struct {
	Timeout   time.Duration // zero waits indefinitely
	MaxBytes  int64
	UserAgent string
	Client    *http.Client
	// AllowLocal lets the loader read file:// URLs and bare paths. Leave it
	// off for loaders fed by network clients.
	AllowLocal bool
}

// HTTPLoader loads images over HTTP(S) and, when allowed, from file://
// URLs or local paths.
type HTTPLoader struct {
	maxBytes   int64
	userAgent  string
	client     *http.Client
	allowLocal bool
}

// NewHTTPLoader creates a new loader.
func NewHTTPLoader(cfg HTTPConfig) *HTTPLoader {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPLoader{
		maxBytes:   maxBytes,
		userAgent:  userAgent,
		client:     client,
		allowLocal: cfg.AllowLocal,
	}
}

// Load fetches rawURL and decodes it.
func (l *HTTPLoader) Load(ctx context.Context, rawURL string) (*Image, error) {
	data, mime, err := l.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, &LoadError{URL: rawURL, Err: err}
	}
	img.URL = rawURL
	if mime != "" && img.Format == FormatUnknown {
		img.MIME = mime
	}
	return img, nil
}

// Fetch returns the raw bytes behind rawURL and the reported media type.
func (l *HTTPLoader) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}

	switch scheme := strings.ToLower(u.Scheme); {
	case scheme == "http", scheme == "https":
		return l.fetchHTTP(ctx, rawURL)
	case !l.allowLocal:
		return nil, "", checkRemote(rawURL)
	case scheme == "file":
		return l.readFile(rawURL, u.Path)
	case scheme == "":
		return l.readFile(rawURL, rawURL)
	default:
		return nil, "", &LoadError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (l *HTTPLoader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &LoadError{URL: rawURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (l *HTTPLoader) readFile(rawURL, path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return nil, "", &LoadError{URL: rawURL, Err: err}
	}
	return data, FormatFromPath(path).MIME(), nil
}

func (l *HTTPLoader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Decode sniffs and decodes an encoded image.
func Decode(data []byte) (*Image, error) {
	format := DetectFormat(data)
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if format == FormatUnknown {
			return nil, fmt.Errorf("unrecognized image data: %w", err)
		}
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	return &Image{
		Image:  img,
		Format: format,
		MIME:   format.MIME(),
		Data:   data,
	}, nil
}
