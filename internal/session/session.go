// Package session re-renders a caption whenever one of its input fields
// changes, owning the single outstanding image load.
package session

import (
	"context"
	"errors"
	"image"
	"strconv"
	"sync"

	"github.com/roboco-io/imgcaption/internal/caption"
	"github.com/roboco-io/imgcaption/internal/query"
	"github.com/roboco-io/imgcaption/internal/source"
)

// DefaultFontSize is used when the font-size field is empty or invalid.
const DefaultFontSize = 20

// Status messages shown through the Sink.
const (
	MsgLoadFailed   = "Failed to load URL"
	MsgRenderFailed = "Failed to render: "
)

// ErrSuperseded is returned by a render whose result was discarded because
// a newer request started before it finished. It is never shown to the user.
var ErrSuperseded = errors.New("superseded by a newer request")

// Sink displays render results. Methods may be called from several
// goroutines.
type Sink interface {
	Show(canvas *image.RGBA)
	Hide()
	Error(msg string)
}

// Renderer draws a captioned canvas. *caption.Composer implements it.
type Renderer interface {
	Render(img image.Image, title string, fontSize float64) (*image.RGBA, error)
}

// Options selects the orchestration policy.
type Options struct {
	// CancelSuperseded aborts an in-flight load when a newer URL arrives and
	// reuses the loaded image while the URL is unchanged. When false every
	// render fetches the image again.
	CancelSuperseded bool
	// RewriteKnownHosts applies HostRules before fetching.
	RewriteKnownHosts bool
	// SymmetricMargins makes the bottom caption margin equal the top one.
	SymmetricMargins bool
	// AutoRenderOnEmptyQuery renders after LoadQuery even when the query
	// carries none of the known keys.
	AutoRenderOnEmptyQuery bool
	DefaultFontSize        int
	HostRules              []source.HostRule
}

// DefaultOptions returns the cancelling, rewriting policy.
func DefaultOptions() Options {
	return Options{
		CancelSuperseded:  true,
		RewriteKnownHosts: true,
		DefaultFontSize:   DefaultFontSize,
		HostRules:         source.DefaultHostRules(),
	}
}

// NewComposer builds a composer from base with the session's margin policy.
func NewComposer(opts Options, base caption.Options) (*caption.Composer, error) {
	base.Layout.SymmetricMargins = opts.SymmetricMargins
	return caption.NewComposer(base)
}

// Fields is a snapshot of the input fields.
type Fields struct {
	Title    string
	FontSize string
	URL      string
}

type load struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	img    *source.Image
	err    error
}

// Session holds the input fields, the latest requested URL and the latest
// resolved image.
type Session struct {
	loader   source.Loader
	renderer Renderer
	sink     Sink
	opts     Options

	baseCtx context.Context
	stop    context.CancelFunc

	// showMu orders sink updates so a stale result can never land after
	// a newer one.
	showMu sync.Mutex

	mu          sync.Mutex
	fields      Fields
	latestURL   string
	latestImage *source.Image
	inflight    *load
	gen         uint64 // bumped per load
	seq         uint64 // bumped per render
}

// New creates a session. Close releases any in-flight load.
func New(loader source.Loader, renderer Renderer, sink Sink, opts Options) *Session {
	if opts.DefaultFontSize <= 0 {
		opts.DefaultFontSize = DefaultFontSize
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		loader:   loader,
		renderer: renderer,
		sink:     sink,
		opts:     opts,
		baseCtx:  ctx,
		stop:     stop,
		fields:   Fields{FontSize: strconv.Itoa(opts.DefaultFontSize)},
	}
}

// Close cancels the in-flight load, if any.
func (s *Session) Close() {
	s.stop()
}

// Fields returns the current input fields.
func (s *Session) Fields() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// FontSizeEcho returns the font-size field padded to two digits.
func (s *Session) FontSizeEcho() string {
	return query.PadFontSize(s.Fields().FontSize)
}

// SetTitle updates the title and re-renders.
func (s *Session) SetTitle(ctx context.Context, title string) error {
	return s.BeginTitle(title).Wait(ctx)
}

// SetFontSize updates the font-size field and re-renders.
func (s *Session) SetFontSize(ctx context.Context, size string) error {
	return s.BeginFontSize(size).Wait(ctx)
}

// SetURL updates the image URL and re-renders. Setting the same URL again
// only refetches when the previous load failed.
func (s *Session) SetURL(ctx context.Context, rawURL string) error {
	return s.BeginURL(rawURL).Wait(ctx)
}

// LoadQuery seeds the fields from a caption/img/fontsz query string and
// renders when any of those keys is present.
func (s *Session) LoadQuery(ctx context.Context, rawQuery string) error {
	return s.BeginQuery(rawQuery).Wait(ctx)
}

// Render draws the current fields. It returns ErrSuperseded, without
// touching the sink, when a newer render started while it was waiting.
func (s *Session) Render(ctx context.Context) error {
	return s.begin(nil).Wait(ctx)
}

// BeginTitle updates the title and starts a render without waiting for it.
// Edits made through the Begin methods take effect in call order, so the
// last one called is the one that is shown.
func (s *Session) BeginTitle(title string) *Pending {
	return s.begin(func() { s.fields.Title = title })
}

// BeginFontSize is the non-blocking form of SetFontSize.
func (s *Session) BeginFontSize(size string) *Pending {
	return s.begin(func() { s.fields.FontSize = size })
}

// BeginURL is the non-blocking form of SetURL.
func (s *Session) BeginURL(rawURL string) *Pending {
	return s.begin(func() {
		failed := s.latestImage == nil && s.inflight == nil
		if rawURL != s.fields.URL || failed {
			s.latestURL = ""
		}
		s.fields.URL = rawURL
	})
}

// BeginQuery is the non-blocking form of LoadQuery. It returns nil when
// the query does not trigger a render.
func (s *Session) BeginQuery(rawQuery string) *Pending {
	p := query.Parse(rawQuery)
	update := func() {
		if p.FontSize != 0 {
			s.fields.FontSize = strconv.Itoa(p.FontSize)
		}
		s.fields.Title = p.Caption
		if p.Img != s.fields.URL {
			s.latestURL = ""
		}
		s.fields.URL = p.Img
	}

	if !p.Present && !s.opts.AutoRenderOnEmptyQuery {
		s.mu.Lock()
		update()
		s.mu.Unlock()
		return nil
	}
	return s.begin(update)
}

// Pending is a render that has claimed its place in the session order but
// may still be waiting for its image. A nil *Pending is a finished no-op.
type Pending struct {
	s      *Session
	seq    uint64
	fields Fields
	ld     *load
	img    *source.Image
	idle   bool
	err    error
}

// begin applies update, reserves the next render sequence number, hides
// the previous result and starts or reuses the image load. It never blocks
// on the network.
func (s *Session) begin(update func()) *Pending {
	s.mu.Lock()
	if update != nil {
		update()
	}
	s.seq++
	p := &Pending{s: s, seq: s.seq, fields: s.fields}
	s.mu.Unlock()

	s.deliver(p.seq, s.sink.Hide)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.seq != s.seq {
		p.idle, p.err = true, ErrSuperseded
		return p
	}
	if p.fields.URL == "" {
		p.idle = true
		return p
	}

	target := p.fields.URL
	if s.opts.RewriteKnownHosts {
		target = source.NormalizeURL(target, s.opts.HostRules)
	}

	switch {
	case target != s.latestURL || !s.opts.CancelSuperseded:
		if s.opts.CancelSuperseded && s.inflight != nil {
			s.inflight.cancel()
		}
		p.ld = s.startLoad(target)
	case s.inflight != nil:
		p.ld = s.inflight
	case s.latestImage == nil:
		// The last load for this URL failed; wait for a new input.
		p.idle = true
	}
	p.img = s.latestImage
	return p
}

// Wait blocks until the render is shown, dropped or fails. Cancelling ctx
// stops the wait but not the shared image load.
func (p *Pending) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.idle {
		return p.err
	}
	s := p.s
	img := p.img

	if ld := p.ld; ld != nil {
		select {
		case <-ld.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.mu.Lock()
		if ld.gen != s.gen || p.seq != s.seq {
			s.mu.Unlock()
			return ErrSuperseded
		}
		if s.inflight == ld {
			s.inflight = nil
		}
		if ld.err != nil {
			s.latestImage = nil
			s.mu.Unlock()
			if !s.deliver(p.seq, func() { s.sink.Error(MsgLoadFailed) }) {
				return ErrSuperseded
			}
			return ld.err
		}
		s.latestImage = ld.img
		img = ld.img
		s.mu.Unlock()
	}

	fontSize := s.opts.DefaultFontSize
	if n, ok := query.ParseFontSize(p.fields.FontSize); ok && n > 0 {
		fontSize = n
	}

	canvas, err := s.renderer.Render(img, p.fields.Title, float64(fontSize))
	if err != nil {
		if !s.deliver(p.seq, func() { s.sink.Error(MsgRenderFailed + err.Error()) }) {
			return ErrSuperseded
		}
		return err
	}
	if !s.deliver(p.seq, func() { s.sink.Show(canvas) }) {
		return ErrSuperseded
	}
	return nil
}

// deliver runs update when seq is still the latest render. It reports
// false when the result was dropped.
func (s *Session) deliver(seq uint64, update func()) bool {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	s.mu.Lock()
	current := seq == s.seq
	s.mu.Unlock()
	if !current {
		return false
	}
	update()
	return true
}

// startLoad must be called with s.mu held.
func (s *Session) startLoad(target string) *load {
	s.gen++
	ctx, cancel := context.WithCancel(s.baseCtx)
	ld := &load{
		gen:    s.gen,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.latestURL = target
	s.latestImage = nil
	s.inflight = ld

	go func() {
		defer cancel()
		img, err := s.loader.Load(ctx, target)
		if err == nil && img == nil {
			err = &source.LoadError{URL: target, Err: errors.New("loader returned no image")}
		}
		ld.img, ld.err = img, err
		close(ld.done)
	}()
	return ld
}
