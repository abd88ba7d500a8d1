package cli

import (
	"context"
	"fmt"

	"github.com/roboco-io/imgcaption/internal/source"
	"github.com/spf13/cobra"
)

var (
	suggestProvider string
	suggestModel    string
	suggestLanguage string
	suggestPrompt   string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <image>",
	Short: "Ask an LLM for a caption",
	Long: `Send the image to a vision-capable LLM and print the caption it proposes.
Nothing is stored.

Without --provider the configured default provider is used when it has
credentials, otherwise the first provider that does.

Examples:
  imgcaption suggest cat.jpg
  imgcaption suggest https://i.redd.it/x.jpg --provider openai --model gpt-4o
  imgcaption suggest cat.jpg --language ko`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().StringVar(&suggestProvider, "provider", "", "provider (anthropic, openai, gemini, ollama)")
	suggestCmd.Flags().StringVar(&suggestModel, "model", "", "model name (provider is detected from it)")
	suggestCmd.Flags().StringVar(&suggestLanguage, "language", "", "caption language code")
	suggestCmd.Flags().StringVar(&suggestPrompt, "prompt", "", "replace the built-in prompt")

	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if suggestLanguage != "" {
		cfg.Suggest.Language = suggestLanguage
	}

	target := args[0]
	if cfg.Session.RewriteKnownHosts {
		target = source.NormalizeURL(target, cfg.SessionOptions().HostRules)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, err := newLoader(cfg, true).Load(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	p, err := pickProvider(cfg, suggestProvider, suggestModel)
	if err != nil {
		return err
	}
	debugf(cmd, "provider: %s", p.Name())

	req := suggestRequest(cfg, p.Name(), img)
	req.Prompt = suggestPrompt
	res, err := p.Suggest(ctx, req)
	if err != nil {
		return err
	}
	if res.Caption == "" {
		return fmt.Errorf("%s returned an empty caption", p.Name())
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Caption)
	debugf(cmd, "model %s, tokens in=%d out=%d total=%d",
		res.Model, res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens)
	return nil
}
