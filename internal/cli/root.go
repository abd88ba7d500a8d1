// Package cli implements the imgcaption command line.
package cli

import (
	"context"
	"fmt"

	"github.com/roboco-io/imgcaption/internal/config"
	"github.com/roboco-io/imgcaption/internal/source"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	noColor    bool
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "imgcaption",
	Short: "Put a wrapped caption bar above an image",
	Long: `imgcaption draws a white caption bar with word-wrapped text above an image.

Images come from http(s) URLs or local files. The caption, image and font
size can be given as flags or as a shareable query string
(caption=...&img=...&fontsz=...).

Commands:
  render     render one captioned image
  live       re-render on every edit read from stdin
  serve      serve the caption editor over HTTP
  suggest    ask an LLM for a caption
  providers  list caption suggestion providers
  config     manage ~/.imgcaption/config.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			DisableColor()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "imgcaption %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.imgcaption/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print errors")

	rootCmd.AddCommand(versionCmd)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command. Long-running commands stop when ctx ends.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newConfigLoader() (*config.Loader, error) {
	if configPath != "" {
		return config.NewLoaderWithPath(configPath), nil
	}
	return config.NewLoader()
}

// loadConfig reads the config file with environment overrides applied.
func loadConfig() (*config.Loader, *config.Config, error) {
	loader, err := newConfigLoader()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to locate config: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loader, cfg, nil
}

// newLoader returns the image loader, tagging the default user agent with
// the version. Local paths are only readable when allowLocal is set.
func newLoader(cfg *config.Config, allowLocal bool) *source.HTTPLoader {
	hc := cfg.HTTPConfig()
	if hc.UserAgent == "" || hc.UserAgent == source.DefaultUserAgent {
		hc.UserAgent = source.DefaultUserAgent + "/" + version
	}
	hc.AllowLocal = allowLocal
	return source.NewHTTPLoader(hc)
}
