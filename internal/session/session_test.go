package session

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roboco-io/imgcaption/internal/source"
)

// fakeLoader serves fixed images; URLs with a gate block until the gate is
// closed or the load is cancelled.
type fakeLoader struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	images  map[string]*source.Image
	gates   map[string]chan struct{}
	errs    map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		started: make(chan string, 16),
		images:  make(map[string]*source.Image),
		gates:   make(map[string]chan struct{}),
		errs:    make(map[string]error),
	}
}

func (f *fakeLoader) add(url string, width int) {
	f.images[url] = &source.Image{Image: image.NewRGBA(image.Rect(0, 0, width, 10)), URL: url}
}

func (f *fakeLoader) gate(url string) chan struct{} {
	ch := make(chan struct{})
	f.gates[url] = ch
	return ch
}

func (f *fakeLoader) Load(ctx context.Context, url string) (*source.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gates[url]
	img, err := f.images[url], f.errs[url]
	f.mu.Unlock()

	f.started <- url

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &source.LoadError{URL: url, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, &source.LoadError{URL: url, Err: err}
	}
	return img, nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLoader) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

type fakeSink struct {
	mu      sync.Mutex
	shown   []int // canvas widths
	hides   int
	visible bool
	errors  []string
	onHide  func()
}

func (s *fakeSink) Show(canvas *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, canvas.Bounds().Dx())
	s.visible = true
}

func (s *fakeSink) Hide() {
	s.mu.Lock()
	s.hides++
	s.visible = false
	hook := s.onHide
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *fakeSink) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *fakeSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *fakeSink) snapshot() ([]int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.shown...), append([]string(nil), s.errors...)
}

type renderCall struct {
	title    string
	fontSize float64
}

// fakeRenderer returns a canvas as wide as the source image.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	err   error
}

func (r *fakeRenderer) Render(img image.Image, title string, fontSize float64) (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{title: title, fontSize: fontSize})
	if r.err != nil {
		return nil, r.err
	}
	return image.NewRGBA(img.Bounds()), nil
}

func (r *fakeRenderer) last() renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func waitStarted(t *testing.T, f *fakeLoader, url string) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != url {
			t.Fatalf("expected load of %q, got %q", url, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for load of %q", url)
	}
}

func TestSession_RenderWithoutURL(t *testing.T) {
	loader := newFakeLoader()
	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()

	if err := s.SetTitle(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loader.callCount() != 0 {
		t.Errorf("expected no loads, got %d", loader.callCount())
	}
	if shown, _ := sink.snapshot(); len(shown) != 0 {
		t.Errorf("expected nothing shown, got %v", shown)
	}
	if sink.hides != 1 {
		t.Errorf("expected canvas hidden once, got %d", sink.hides)
	}
}

func TestSession_ReusesImageForUnchangedURL(t *testing.T) {
	loader := newFakeLoader()
	loader.add("https://example.com/a.png", 40)
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	s := New(loader, renderer, sink, DefaultOptions())
	defer s.Close()
	ctx := context.Background()

	if err := s.SetURL(ctx, "https://example.com/a.png"); err != nil {
		t.Fatalf("SetURL failed: %v", err)
	}
	if err := s.SetTitle(ctx, "caption"); err != nil {
		t.Fatalf("SetTitle failed: %v", err)
	}
	if err := s.SetFontSize(ctx, "32"); err != nil {
		t.Fatalf("SetFontSize failed: %v", err)
	}
	if err := s.SetURL(ctx, "https://example.com/a.png"); err != nil {
		t.Fatalf("SetURL failed: %v", err)
	}

	if loader.callCount() != 1 {
		t.Errorf("expected one fetch, got %d", loader.callCount())
	}
	shown, _ := sink.snapshot()
	if len(shown) != 4 {
		t.Errorf("expected 4 renders, got %d", len(shown))
	}
	if got := renderer.last(); got.title != "caption" || got.fontSize != 32 {
		t.Errorf("unexpected render call %+v", got)
	}
}

func TestSession_AlwaysRefetchWithoutCancellation(t *testing.T) {
	loader := newFakeLoader()
	loader.add("a.png", 10)
	opts := DefaultOptions()
	opts.CancelSuperseded = false
	s := New(loader, &fakeRenderer{}, &fakeSink{}, opts)
	defer s.Close()
	ctx := context.Background()

	_ = s.SetURL(ctx, "a.png")
	_ = s.SetTitle(ctx, "x")
	_ = s.SetTitle(ctx, "y")

	if loader.callCount() != 3 {
		t.Errorf("expected a fetch per render, got %d", loader.callCount())
	}
}

func TestSession_FontSizeFallback(t *testing.T) {
	tests := []struct {
		field    string
		expected float64
	}{
		{"", 20},
		{"abc", 20},
		{"0", 20},
		{"-3", 20},
		{"18px", 18},
		{"44", 44},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			loader := newFakeLoader()
			loader.add("a.png", 10)
			renderer := &fakeRenderer{}
			s := New(loader, renderer, &fakeSink{}, DefaultOptions())
			defer s.Close()

			_ = s.SetURL(context.Background(), "a.png")
			if err := s.SetFontSize(context.Background(), tc.field); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := renderer.last().fontSize; got != tc.expected {
				t.Errorf("expected font size %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestSession_FontSizeEcho(t *testing.T) {
	s := New(newFakeLoader(), &fakeRenderer{}, &fakeSink{}, DefaultOptions())
	defer s.Close()

	if got := s.FontSizeEcho(); got != "20" {
		t.Errorf("expected '20', got %q", got)
	}
	_ = s.SetFontSize(context.Background(), "8")
	if got := s.FontSizeEcho(); got != "08" {
		t.Errorf("expected '08', got %q", got)
	}
}

func TestSession_LoadFailure(t *testing.T) {
	loader := newFakeLoader()
	loader.errs["bad.png"] = errors.New("404")
	loader.add("good.png", 10)
	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()
	ctx := context.Background()

	err := s.SetURL(ctx, "bad.png")
	var loadErr *source.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *source.LoadError, got %v", err)
	}
	_, errs := sink.snapshot()
	if len(errs) != 1 || errs[0] != MsgLoadFailed {
		t.Errorf("expected load failure message, got %v", errs)
	}

	// No retry until an input changes the URL.
	if err := s.SetTitle(ctx, "again"); err != nil {
		t.Errorf("expected silent no-op, got %v", err)
	}
	if loader.callCount() != 1 {
		t.Errorf("expected no retry, got %d loads", loader.callCount())
	}

	// Re-entering the same URL retries.
	_ = s.SetURL(ctx, "bad.png")
	if loader.callCount() != 2 {
		t.Errorf("expected retry on URL input, got %d loads", loader.callCount())
	}

	if err := s.SetURL(ctx, "good.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shown, _ := sink.snapshot(); len(shown) != 1 {
		t.Errorf("expected one canvas, got %v", shown)
	}
}

func TestSession_RenderFailure(t *testing.T) {
	loader := newFakeLoader()
	loader.add("a.png", 10)
	sink := &fakeSink{}
	renderer := &fakeRenderer{err: errors.New("degenerate layout")}
	s := New(loader, renderer, sink, DefaultOptions())
	defer s.Close()

	err := s.SetURL(context.Background(), "a.png")
	if err == nil || err.Error() != "degenerate layout" {
		t.Fatalf("expected render error, got %v", err)
	}
	shown, errs := sink.snapshot()
	if len(shown) != 0 {
		t.Errorf("expected no canvas, got %v", shown)
	}
	if len(errs) != 1 || !strings.HasPrefix(errs[0], MsgRenderFailed) {
		t.Errorf("expected render failure message, got %v", errs)
	}
}

func TestSession_RewritesKnownHosts(t *testing.T) {
	loader := newFakeLoader()
	loader.add("https://i.redd.it/x.jpg", 10)
	s := New(loader, &fakeRenderer{}, &fakeSink{}, DefaultOptions())
	defer s.Close()

	if err := s.SetURL(context.Background(), "https://preview.redd.it/x.jpg?a=1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loader.lastCall(); got != "https://i.redd.it/x.jpg" {
		t.Errorf("expected rewritten URL, got %q", got)
	}

	opts := DefaultOptions()
	opts.RewriteKnownHosts = false
	loader2 := newFakeLoader()
	loader2.errs["https://preview.redd.it/x.jpg?a=1"] = errors.New("preview only")
	s2 := New(loader2, &fakeRenderer{}, &fakeSink{}, opts)
	defer s2.Close()

	_ = s2.SetURL(context.Background(), "https://preview.redd.it/x.jpg?a=1")
	if got := loader2.lastCall(); got != "https://preview.redd.it/x.jpg?a=1" {
		t.Errorf("expected original URL, got %q", got)
	}
}

func TestSession_LoadQuery(t *testing.T) {
	loader := newFakeLoader()
	loader.add("https://example.com/a.png", 10)
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	s := New(loader, renderer, sink, DefaultOptions())
	defer s.Close()

	err := s.LoadQuery(context.Background(), "caption=Hi&img=https://example.com/a.png&fontsz=30")
	if err != nil {
		t.Fatalf("LoadQuery failed: %v", err)
	}

	f := s.Fields()
	if f.Title != "Hi" || f.URL != "https://example.com/a.png" || f.FontSize != "30" {
		t.Errorf("unexpected fields %+v", f)
	}
	if len(renderer.calls) != 1 {
		t.Fatalf("expected one render, got %d", len(renderer.calls))
	}
	if got := renderer.last(); got.title != "Hi" || got.fontSize != 30 {
		t.Errorf("unexpected render call %+v", got)
	}
	if shown, _ := sink.snapshot(); len(shown) != 1 {
		t.Errorf("expected one canvas shown, got %v", shown)
	}
}

func TestSession_LoadQueryEmpty(t *testing.T) {
	for _, auto := range []bool{false, true} {
		opts := DefaultOptions()
		opts.AutoRenderOnEmptyQuery = auto
		sink := &fakeSink{}
		s := New(newFakeLoader(), &fakeRenderer{}, sink, opts)

		if err := s.LoadQuery(context.Background(), ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := 0
		if auto {
			want = 1
		}
		if sink.hides != want {
			t.Errorf("auto=%v: expected %d render attempts, got %d", auto, want, sink.hides)
		}
		if s.Fields().FontSize != "20" {
			t.Errorf("expected default font size to stay, got %q", s.Fields().FontSize)
		}
		s.Close()
	}
}

func TestSession_SupersededLoadIsDiscarded(t *testing.T) {
	loader := newFakeLoader()
	loader.add("first.png", 11)
	loader.add("second.png", 22)
	firstGate := loader.gate("first.png")
	secondGate := loader.gate("second.png")

	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.SetURL(ctx, "first.png") }()
	waitStarted(t, loader, "first.png")

	secondErr := make(chan error, 1)
	go func() { secondErr <- s.SetURL(ctx, "second.png") }()
	waitStarted(t, loader, "second.png")

	// The first load was cancelled; its waiter gives up silently.
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for first render, got %v", err)
	}

	close(secondGate)
	if err := <-secondErr; err != nil {
		t.Fatalf("second render failed: %v", err)
	}
	close(firstGate)

	shown, errs := sink.snapshot()
	if len(shown) != 1 || shown[0] != 22 {
		t.Errorf("expected only the second image drawn, got %v", shown)
	}
	if len(errs) != 0 {
		t.Errorf("expected no visible errors, got %v", errs)
	}
}

func TestSession_StaleResultDroppedWithoutCancellation(t *testing.T) {
	loader := newFakeLoader()
	loader.add("first.png", 11)
	loader.add("second.png", 22)
	firstGate := loader.gate("first.png")

	opts := DefaultOptions()
	opts.CancelSuperseded = false
	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, opts)
	defer s.Close()
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.SetURL(ctx, "first.png") }()
	waitStarted(t, loader, "first.png")

	if err := s.SetURL(ctx, "second.png"); err != nil {
		t.Fatalf("second render failed: %v", err)
	}
	waitStarted(t, loader, "second.png")

	close(firstGate)
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for first render, got %v", err)
	}

	shown, _ := sink.snapshot()
	if len(shown) != 1 || shown[0] != 22 {
		t.Errorf("expected only the second image drawn, got %v", shown)
	}
}

func TestSession_CallerContextCancelled(t *testing.T) {
	loader := newFakeLoader()
	loader.add("slow.png", 10)
	gate := loader.gate("slow.png")
	s := New(loader, &fakeRenderer{}, &fakeSink{}, DefaultOptions())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.SetURL(ctx, "slow.png") }()
	waitStarted(t, loader, "slow.png")
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The load keeps running and a later render picks it up.
	close(gate)
	if err := s.Render(context.Background()); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if loader.callCount() != 1 {
		t.Errorf("expected the in-flight load to be reused, got %d loads", loader.callCount())
	}
}

func TestSession_BeginAppliesEditsInCallOrder(t *testing.T) {
	loader := newFakeLoader()
	loader.add("https://example.com/a.png", 100)
	loader.add("https://example.com/b.png", 200)
	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()

	first := s.BeginURL("https://example.com/a.png")
	second := s.BeginURL("https://example.com/b.png")
	if got := s.Fields().URL; got != "https://example.com/b.png" {
		t.Fatalf("expected last edit to own the field, got %q", got)
	}

	// Wait on the newer render first so the older one finishes last.
	if err := second.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Wait(context.Background()); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the older edit, got %v", err)
	}

	shown, _ := sink.snapshot()
	if len(shown) != 1 || shown[0] != 200 {
		t.Errorf("expected only the 200px canvas, got %v", shown)
	}
}

func TestSession_BeginQueryWithoutKeys(t *testing.T) {
	sink := &fakeSink{}
	s := New(newFakeLoader(), &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()

	if p := s.BeginQuery("foo=bar"); p != nil {
		t.Fatalf("expected no pending render, got %+v", p)
	}
	var p *Pending
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil Pending should wait as a no-op, got %v", err)
	}
	if sink.hides != 0 {
		t.Errorf("expected no sink updates, got %d hides", sink.hides)
	}
}

func TestSession_LoadFinishingDuringHideStaysHidden(t *testing.T) {
	loader := newFakeLoader()
	loader.add("https://example.com/a.png", 100)
	gate := loader.gate("https://example.com/a.png")
	sink := &fakeSink{}
	s := New(loader, &fakeRenderer{}, sink, DefaultOptions())
	defer s.Close()

	first := s.BeginURL("https://example.com/a.png")
	waitStarted(t, loader, "https://example.com/a.png")
	done := make(chan error, 1)
	go func() { done <- first.Wait(context.Background()) }()

	// Let the pending load complete while the next render is hiding.
	var once sync.Once
	sink.mu.Lock()
	sink.onHide = func() {
		once.Do(func() {
			close(gate)
			time.Sleep(50 * time.Millisecond)
		})
	}
	sink.mu.Unlock()

	if err := s.SetURL(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first render")
	}
	if sink.isVisible() {
		shown, _ := sink.snapshot()
		t.Errorf("expected the canvas to stay hidden, shown %v", shown)
	}
}
