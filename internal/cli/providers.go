package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/roboco-io/imgcaption/internal/suggest"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List caption suggestion providers",
	Long: `List the LLM providers that can suggest captions.

Each provider needs its API key in the config file or in the listed
environment variable. ollama runs locally and needs no key.

Examples:
  imgcaption suggest cat.jpg --provider anthropic
  imgcaption render cat.jpg --suggest --model gpt-4o -o out.png`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := suggest.NewRegistryFromConfig(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, colorBold.Sprint("PROVIDER\tMODEL\tENV\tSTATUS\tDESCRIPTION"))
	for _, name := range reg.List() {
		p, _ := reg.Get(name)
		info, _ := reg.Info(name)

		model := info.DefaultModel
		if pc, ok := cfg.GetProvider(name); ok && pc.Model != "" {
			model = pc.Model
		}
		marker := ""
		if name == cfg.Suggest.DefaultProvider {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
			name, marker, model, info.EnvKey, checkProviderStatus(p), info.Description)
	}
	return nil
}

func checkProviderStatus(p suggest.Provider) string {
	if err := p.Validate(); err != nil {
		return colorError.Sprint("✗ not configured")
	}
	return colorOK.Sprint("✓ ready")
}
