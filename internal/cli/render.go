package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/roboco-io/imgcaption/internal/caption"
	"github.com/roboco-io/imgcaption/internal/config"
	"github.com/roboco-io/imgcaption/internal/query"
	"github.com/roboco-io/imgcaption/internal/session"
	"github.com/roboco-io/imgcaption/internal/source"
	"github.com/roboco-io/imgcaption/internal/suggest"
	"github.com/spf13/cobra"
)

var (
	renderCaption  string
	renderImage    string
	renderFontSize string
	renderQuery    string
	renderOutput   string
	renderFormat   string
	renderQuality  int
	renderLink     bool
	renderSuggest  bool
	renderProvider string
	renderModel    string
)

var renderCmd = &cobra.Command{
	Use:   "render [image]",
	Short: "Render one captioned image",
	Long: `Render one image with a caption bar above it.

The image is an http(s) URL, a file:// URL or a local path. Known preview
hosts are rewritten to their full-size originals before fetching.

Environment variables:
  IMGCAPTION_FONT_SIZE=n   default font size
  IMGCAPTION_FONT=path     TrueType font file
  IMGCAPTION_SUGGEST=true  suggest a caption when none is given

Examples:
  imgcaption render cat.jpg -c "When the build passes" -o out.png
  imgcaption render --query 'caption=Hi&img=https://i.redd.it/x.jpg&fontsz=30' -o out.png
  imgcaption render cat.jpg --suggest --provider anthropic -o out.png
  imgcaption render cat.jpg -c Hi --link`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderCaption, "caption", "c", "", "caption text")
	renderCmd.Flags().StringVarP(&renderImage, "img", "i", "", "image URL or path")
	renderCmd.Flags().StringVarP(&renderFontSize, "fontsz", "s", "", "font size in pixels")
	renderCmd.Flags().StringVar(&renderQuery, "query", "", "seed caption, img and fontsz from a query string")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output file (default: stdout)")
	renderCmd.Flags().StringVar(&renderFormat, "format", "", "output format: png or jpeg (default: from -o or config)")
	renderCmd.Flags().IntVar(&renderQuality, "quality", 0, "JPEG quality 1-100")
	renderCmd.Flags().BoolVar(&renderLink, "link", false, "print the shareable query string")
	renderCmd.Flags().BoolVar(&renderSuggest, "suggest", false, "suggest a caption when none is given")
	renderCmd.Flags().StringVar(&renderProvider, "provider", "", "suggestion provider (anthropic, openai, gemini, ollama)")
	renderCmd.Flags().StringVar(&renderModel, "model", "", "suggestion model")

	rootCmd.AddCommand(renderCmd)
}

// renderInput merges --query, the positional image and the flags. Flags win.
func renderInput(cmd *cobra.Command, args []string, defaultSize int) (query.Params, int) {
	p := query.Parse(renderQuery)
	if len(args) > 0 {
		p.Img = args[0]
	}
	if cmd.Flags().Changed("img") {
		p.Img = renderImage
	}
	if cmd.Flags().Changed("caption") {
		p.Caption = renderCaption
	}

	size := defaultSize
	if p.FontSize > 0 {
		size = p.FontSize
	}
	if cmd.Flags().Changed("fontsz") {
		if n, ok := query.ParseFontSize(renderFontSize); ok && n > 0 {
			size = n
		} else {
			size = defaultSize
		}
	}
	p.FontSize = size
	return p, size
}

func runRender(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params, size := renderInput(cmd, args, cfg.FontSize())
	if params.Img == "" {
		return errors.New("no image given: pass a path, --img or --query")
	}

	if renderLink {
		fmt.Fprintln(cmd.OutOrStdout(), "?"+params.Encode())
		if renderOutput == "" {
			return nil
		}
	}

	format := outputFormat(renderOutput, renderFormat, cfg.Render.Format)
	var out io.Writer = cmd.OutOrStdout()
	if renderOutput == "" && isTerminal(out) {
		return errors.New("refusing to write a binary image to a terminal; use -o")
	}

	target := params.Img
	if cfg.Session.RewriteKnownHosts {
		target = source.NormalizeURL(target, cfg.SessionOptions().HostRules)
	}
	debugf(cmd, "image: %s", target)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, err := newLoader(cfg, true).Load(ctx, target)
	if err != nil {
		return fmt.Errorf("%s: %w", session.MsgLoadFailed, err)
	}
	debugf(cmd, "loaded %s %dx%d", img.Format, img.Bounds().Dx(), img.Bounds().Dy())

	if params.Caption == "" && (renderSuggest || cfg.Suggest.Auto) {
		res, err := suggestCaption(ctx, cmd, cfg, img, renderProvider, renderModel)
		if err != nil {
			return fmt.Errorf("caption suggestion failed: %w", err)
		}
		params.Caption = res.Caption
		statusf(cmd, "suggested caption: %s", res.Caption)
	}

	composer, err := session.NewComposer(cfg.SessionOptions(), cfg.CaptionOptions())
	if err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	canvas, err := composer.Render(img, params.Caption, float64(size))
	if err != nil {
		return fmt.Errorf("%s%w", session.MsgRenderFailed, err)
	}
	reportLayout(cmd, composer, img, params.Caption, float64(size))

	quality := renderQuality
	if quality == 0 {
		quality = cfg.Render.JPEGQuality
	}

	if renderOutput == "" {
		w := bufio.NewWriter(out)
		if err := caption.Encode(w, canvas, format, quality); err != nil {
			return err
		}
		return w.Flush()
	}

	f, err := os.Create(renderOutput)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := caption.Encode(f, canvas, format, quality); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	b := canvas.Bounds()
	statusf(cmd, "rendered %s (%dx%d, font %dpx)", renderOutput, b.Dx(), b.Dy(), size)
	return nil
}

// reportLayout logs the wrapped lines and warns about lines wider than
// the caption area. Only single words too long to wrap can be.
func reportLayout(cmd *cobra.Command, composer *caption.Composer, img image.Image, title string, size float64) {
	b := img.Bounds()
	layout, err := composer.Layout(b.Dx(), b.Dy(), title, size)
	if err != nil {
		return
	}
	lines := layout.Texts()
	debugf(cmd, "caption: %d line(s) %q, bar %dpx, limit %d pixels", len(lines), lines, layout.BarHeight, composer.Options().MaxPixels)

	measure, err := composer.Measurer(size)
	if err != nil {
		return
	}
	for _, line := range lines {
		if w := measure(line); w > layout.TextWidth {
			warnf(cmd, "caption line %q is %.0fpx wide, overflowing the %.0fpx text area", line, w, layout.TextWidth)
		}
	}
}

// outputFormat picks the encoder: explicit flag, then the output file
// extension, then the configured default.
func outputFormat(output, flag, fallback string) string {
	if flag != "" {
		return strings.ToLower(flag)
	}
	if output != "" {
		switch source.FormatFromPath(output) {
		case source.FormatJPEG:
			return "jpeg"
		case source.FormatPNG:
			return "png"
		}
	}
	if fallback == "" {
		return "png"
	}
	return fallback
}

// pickProvider resolves the suggestion provider from flags and config.
// An explicit name must validate; otherwise the configured default is
// tried before any other usable provider.
func pickProvider(cfg *config.Config, name, model string) (suggest.Provider, error) {
	if model != "" {
		if name == "" {
			name = suggest.DetectProvider(model)
		}
		cfg = suggest.WithModel(cfg, name, model)
	}

	reg, err := suggest.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if name != "" {
		return reg.Pick(name)
	}
	if _, ok := cfg.GetDefaultProvider(); ok {
		if p, err := reg.Pick(cfg.Suggest.DefaultProvider); err == nil {
			return p, nil
		}
	}
	return reg.Pick("")
}

func suggestCaption(ctx context.Context, cmd *cobra.Command, cfg *config.Config, img *source.Image, name, model string) (*suggest.Result, error) {
	p, err := pickProvider(cfg, name, model)
	if err != nil {
		return nil, err
	}
	debugf(cmd, "asking %s for a caption", p.Name())

	res, err := p.Suggest(ctx, suggestRequest(cfg, p.Name(), img))
	if err != nil {
		return nil, err
	}
	debugf(cmd, "model %s, tokens in=%d out=%d", res.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
	if res.Caption == "" {
		return nil, errors.New("provider returned an empty caption")
	}
	return res, nil
}

func suggestRequest(cfg *config.Config, provider string, img *source.Image) suggest.Request {
	req := suggest.RequestFromConfig(cfg, provider)
	req.Image = img.Data
	req.MIME = img.MIME
	return req
}
