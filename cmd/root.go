package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpchat-ai/mcpchat/internal/config"
	"github.com/mcpchat-ai/mcpchat/internal/provider"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	sessionFlag  string
	storeFlag    string
	debugFlag    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "mcpchat",
		Short: "MCP-backed chat client",
		Long: "mcpchat is an interactive chat client that connects LLM providers\n" +
			"to MCP servers: their tools, prompts, and resources become part of\n" +
			"every conversation, and conversations persist across restarts.",
		// Running mcpchat with no subcommand starts the chat REPL.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/mcpchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "resume a session by id or unique prefix")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "override conversation store path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mcpchat %s (commit %s, built %s)\n", appVersion, appCommit, appDate)
		},
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if storeFlag != "" {
		cfg.Storage.Path = storeFlag
	}

	return cfg
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY (or OPENAI_API_KEY / ANTHROPIC_API_KEY)",
			name, name,
		)
	}

	// Model priority: CLI flag / top-level config > per-provider config.
	model := cfg.Model
	if model == "" {
		model = pc.Model
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, model), nil
	case "openai":
		return provider.NewOpenAIProvider(apiKey, pc.BaseURL, model), nil
	default:
		// All other providers use an OpenAI-compatible API.
		baseURL := pc.BaseURL
		if baseURL == "" {
			if u, ok := config.KnownProviderBaseURLs[name]; ok {
				baseURL = u
			} else {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}
