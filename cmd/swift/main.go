package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/config"
	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "swift",
	Short:   "Triage idea lists with a web-grounded LLM judge",
	Long:    "SWIFT reads a table of problem/solution ideas, searches the web for each one, asks an LLM whether the idea should be filtered out, and writes keep/filter results with cited sources.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return eris.Wrap(err, "loading config")
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := config.InitLogger(cfg.Logging); err != nil {
			return err
		}
		if path != "" {
			zap.L().Debug("config loaded", zap.String("path", path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("swift", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in the XDG config directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		created, err := config.WriteDefault(target)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure search providers, API key variables, and the LLM provider.")
		return nil
	},
}

// --- check command ---

var (
	checkPing bool
	checkShow bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether search, LLM and embedding providers are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := color.New(color.FgGreen).SprintFunc()
		bad := color.New(color.FgRed).SprintFunc()
		mark := func(good bool, detail string) {
			if good {
				fmt.Printf("  %s %s\n", ok("✓"), detail)
			} else {
				fmt.Printf("  %s %s\n", bad("✗"), detail)
			}
		}

		if checkShow {
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}

		if path := cfg.Path(); path != "" {
			fmt.Printf("Config: %s\n", path)
		} else {
			fmt.Println("Config: built-in defaults")
		}
		if err := cfg.Validate(); err != nil {
			mark(false, err.Error())
			return err
		}

		failures := 0
		fmt.Println("\nSearch:")
		for _, s := range searchProviders(cfg) {
			configured := true
			if c, hasKey := s.(interface{ IsConfigured() bool }); hasKey {
				configured = c.IsConfigured()
			}
			mark(configured, s.Name())
			if !configured {
				failures++
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
		defer cancel()

		fmt.Println("\nLLM:")
		primary, fallback := cfg.LLMSettings()
		provider, err := llm.CreateProvider(primary, fallback)
		if err != nil {
			mark(false, err.Error())
			failures++
		} else {
			mark(true, fmt.Sprintf("%s (%s)", provider.Name(), primary.Model))
			if checkPing {
				_, err := provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: "Reply with OK."}}, 5)
				mark(err == nil, "chat request"+errSuffix(err))
				if err != nil {
					failures++
				}
			}
		}

		fmt.Println("\nEmbedding:")
		embedder, err := llm.CreateEmbedder(cfg.EmbeddingSettings())
		if err != nil {
			mark(false, err.Error())
			failures++
		} else {
			mark(true, fmt.Sprintf("%s (%s)", cfg.Embedding.Provider, cfg.Embedding.Model))
			if checkPing {
				_, err := embedder.Embed(ctx, []string{"ping"})
				mark(err == nil, "embedding request"+errSuffix(err))
				if err != nil {
					failures++
				}
			}
		}

		if failures > 0 {
			return eris.Errorf("%d check(s) failed", failures)
		}
		fmt.Println("\nAll checks passed.")
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkPing, "ping", false, "Send a minimal request to each LLM backend")
	checkCmd.Flags().BoolVar(&checkShow, "show-config", false, "Print the effective configuration")
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return ": " + err.Error()
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP triage API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		pipe, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv := server.New(pipe, server.Options{
			Evaluation:  cfg.EvaluationConfig(),
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Serving on http://127.0.0.1:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
