package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roboco-io/imgcaption/internal/caption"
	"github.com/roboco-io/imgcaption/internal/query"
	"github.com/roboco-io/imgcaption/internal/session"
	"github.com/spf13/cobra"
)

var (
	liveOutput string
	liveQuery  string
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Re-render on every edit read from stdin",
	Long: `Read edits from stdin, one per line, and re-render the captioned image to
the output file after each one. A newer image URL cancels the load of the
previous one; only the most recent edit is ever written.

Edits:
  title <text>    set the caption (alias: caption)
  size <n>        set the font size (alias: fontsz)
  url <image>     set the image URL or path (alias: img)
  query <q>       seed all fields from caption=...&img=...&fontsz=...
  show            print the current fields
  quit            stop reading

Example:
  imgcaption live -o preview.png`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().StringVarP(&liveOutput, "output", "o", "caption.png", "file rewritten after each render")
	liveCmd.Flags().StringVar(&liveQuery, "query", "", "initial caption, img and fontsz query string")

	rootCmd.AddCommand(liveCmd)
}

// fileSink writes each shown canvas to a PNG file.
type fileSink struct {
	cmd  *cobra.Command
	path string

	mu  sync.Mutex
	err error
}

func (s *fileSink) Show(canvas *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = writePNG(s.path, canvas)
	if s.err != nil {
		errorf(s.cmd, "failed to write %s: %v", s.path, s.err)
		return
	}
	b := canvas.Bounds()
	statusf(s.cmd, "rendered %s (%dx%d)", s.path, b.Dx(), b.Dy())
}

func (s *fileSink) Hide() {}

func (s *fileSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errorf(s.cmd, "%s", msg)
}

// writePNG replaces path through a temporary file so readers never see a
// partial image.
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".imgcaption-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := caption.Encode(tmp, img, "png", 0); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func runLive(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	composer, err := session.NewComposer(cfg.SessionOptions(), cfg.CaptionOptions())
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}

	sink := &fileSink{cmd: cmd, path: liveOutput}
	sess := session.New(newLoader(cfg, true), composer, sink, cfg.SessionOptions())
	defer sess.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Edits update the session on this goroutine, in input order. Only the
	// wait for the image and the render itself run in the background.
	var wg sync.WaitGroup
	run := func(p *session.Pending) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Wait(ctx)
			switch {
			case err == nil, errors.Is(err, session.ErrSuperseded), errors.Is(err, context.Canceled):
			default:
				debugf(cmd, "render: %v", err)
			}
		}()
	}

	if liveQuery != "" || cfg.Session.AutoRenderOnEmptyQuery {
		run(sess.BeginQuery(liveQuery))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(verb) {
		case "title", "caption":
			run(sess.BeginTitle(arg))
		case "size", "fontsz":
			run(sess.BeginFontSize(arg))
			debugf(cmd, "font size %s", query.PadFontSize(arg))
		case "url", "img":
			run(sess.BeginURL(arg))
		case "query":
			run(sess.BeginQuery(strings.TrimPrefix(arg, "?")))
		case "show":
			f := sess.Fields()
			fmt.Fprintf(cmd.OutOrStdout(), "title: %s\nsize:  %s\nurl:   %s\n", f.Title, sess.FontSizeEcho(), f.URL)
		case "quit", "exit":
			wg.Wait()
			return sink.lastErr()
		default:
			warnf(cmd, "unknown edit %q (title, size, url, query, show, quit)", verb)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read edits: %w", err)
	}

	wg.Wait()
	return sink.lastErr()
}

func (s *fileSink) lastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
