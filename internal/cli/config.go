package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roboco-io/imgcaption/internal/config"
	"github.com/roboco-io/imgcaption/internal/suggest"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage the imgcaption configuration.

Config file: ~/.imgcaption/config.yaml

Subcommands:
  show    print the effective configuration
  init    write a default config file
  set     change one setting
  path    print the config file path`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration",
	Long: `Print the configuration file contents, or the defaults when there is no
file, followed by the environment variables that override it.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to ~/.imgcaption/config.yaml.

Fails when the file exists unless --force is given.`,
	RunE: runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting and save the config file.

Keys:
  render.font_size                    default font size in pixels
  render.font_path                    TrueType font file ("" for the built-in font)
  render.format                       png or jpeg
  layout.symmetric_margins            true/false
  text.collapse_spaces                true/false
  session.cancel_superseded           true/false
  session.rewrite_known_hosts         true/false
  session.auto_render_on_empty_query  true/false
  fetch.timeout                       duration, e.g. 30s (0 for none)
  server.addr                         listen address
  suggest.default_provider            anthropic, openai, gemini, ollama
  suggest.language                    caption language code
  suggest.temperature                 0.0-1.0
  suggest.auto                        true/false

Examples:
  imgcaption config set render.font_size 32
  imgcaption config set suggest.default_provider openai`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := newConfigLoader()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), loader.ConfigPath())
		return nil
	},
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loader, err := newConfigLoader()
	if err != nil {
		return fmt.Errorf("failed to locate config: %w", err)
	}

	cfg, err := loader.LoadRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if loader.Exists() {
		fmt.Fprintf(out, "Config file: %s\n\n", loader.ConfigPath())
	} else {
		fmt.Fprintf(out, "Config file: (defaults)\n\n")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to print config: %w", err)
	}
	fmt.Fprintln(out, string(data))

	fmt.Fprintln(out, colorBold.Sprint("Environment:"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	envVars := []struct {
		key   string
		desc  string
		value string
	}{
		{config.EnvFontSize, "font size", os.Getenv(config.EnvFontSize)},
		{config.EnvFontPath, "font file", os.Getenv(config.EnvFontPath)},
		{config.EnvAddr, "listen address", os.Getenv(config.EnvAddr)},
		{config.EnvSuggest, "suggest empty captions", os.Getenv(config.EnvSuggest)},
		{config.EnvProvider, "suggestion provider", os.Getenv(config.EnvProvider)},
		{"ANTHROPIC_API_KEY", "Anthropic API key", maskAPIKey(os.Getenv("ANTHROPIC_API_KEY"))},
		{"OPENAI_API_KEY", "OpenAI API key", maskAPIKey(os.Getenv("OPENAI_API_KEY"))},
		{"GOOGLE_API_KEY", "Google API key", maskAPIKey(os.Getenv("GOOGLE_API_KEY"))},
		{"OLLAMA_HOST", "Ollama host", os.Getenv("OLLAMA_HOST")},
	}

	for _, ev := range envVars {
		status := colorMuted.Sprint("(unset)")
		if ev.value != "" {
			status = ev.value
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", ev.key, ev.desc, status)
	}
	return w.Flush()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader, err := newConfigLoader()
	if err != nil {
		return fmt.Errorf("failed to locate config: %w", err)
	}

	if loader.Exists() && !configForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", loader.ConfigPath())
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config file written: %s\n", loader.ConfigPath())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	loader, err := newConfigLoader()
	if err != nil {
		return fmt.Errorf("failed to locate config: %w", err)
	}

	cfg, err := loader.LoadRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

var configKeys = []string{
	"render.font_size", "render.font_path", "render.format",
	"layout.symmetric_margins", "text.collapse_spaces",
	"session.cancel_superseded", "session.rewrite_known_hosts", "session.auto_render_on_empty_query",
	"fetch.timeout", "server.addr",
	"suggest.default_provider", "suggest.language", "suggest.temperature", "suggest.auto",
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "render.font_size":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid font size: %s", value)
		}
		cfg.Render.FontSize = n

	case "render.font_path":
		if value != "" {
			if _, err := os.Stat(value); err != nil {
				return fmt.Errorf("font file not found: %s", value)
			}
		}
		cfg.Render.FontPath = value

	case "render.format":
		formats := []string{"png", "jpeg"}
		if !contains(formats, value) {
			return fmt.Errorf("invalid format: %s (supported: %s)", value, strings.Join(formats, ", "))
		}
		cfg.Render.Format = value

	case "layout.symmetric_margins":
		return setBool(&cfg.Layout.SymmetricMargins, value)
	case "text.collapse_spaces":
		return setBool(&cfg.Text.CollapseSpaces, value)
	case "session.cancel_superseded":
		return setBool(&cfg.Session.CancelSuperseded, value)
	case "session.rewrite_known_hosts":
		return setBool(&cfg.Session.RewriteKnownHosts, value)
	case "session.auto_render_on_empty_query":
		return setBool(&cfg.Session.AutoRenderOnEmptyQuery, value)
	case "suggest.auto":
		return setBool(&cfg.Suggest.Auto, value)

	case "fetch.timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid timeout: %s", value)
		}
		cfg.Fetch.Timeout = d

	case "server.addr":
		cfg.Server.Addr = value

	case "suggest.default_provider":
		var names []string
		for _, info := range suggest.Builtins() {
			names = append(names, info.Name)
		}
		if !contains(names, value) {
			return fmt.Errorf("invalid provider: %s (supported: %s)", value, strings.Join(names, ", "))
		}
		cfg.Suggest.DefaultProvider = value

	case "suggest.language":
		if value == "" {
			return fmt.Errorf("language cannot be empty")
		}
		cfg.Suggest.Language = value

	case "suggest.temperature":
		temp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature: %s", value)
		}
		if temp < 0 || temp > 1 {
			return fmt.Errorf("temperature must be within 0.0-1.0: %f", temp)
		}
		cfg.Suggest.Temperature = temp

	default:
		return fmt.Errorf("unknown config key: %s\nsupported keys: %s", key, strings.Join(configKeys, ", "))
	}
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean: %s", value)
	}
	*dst = b
	return nil
}

func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
