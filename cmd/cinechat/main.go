package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cinechat/internal/agent"
	"cinechat/internal/catalog"
	"cinechat/internal/config"
	"cinechat/internal/dispatch"
	"cinechat/internal/intent"
	"cinechat/internal/llm"
	"cinechat/internal/logging"
	"cinechat/internal/orchestrator"
	"cinechat/internal/types"
)

var (
	verbose     bool
	contextFlag string

	logger *zap.Logger
)

// rootCmd starts the interactive chat when run without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "cinechat",
	Short: "cinechat - conversational movie assistant",
	Long: `cinechat is the conversational core of a movie tracking application.

It classifies each chat turn into intents (catalog discovery, person
lookup, similar movies), routes them to specialized LLM-backed agents
and merges results from your library and the remote catalog.

Run without arguments to start an interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(logging.Options{
			Debug: verbose || cfg.Logging.Debug,
			Level: cfg.Logging.Level,
		})
		if err != nil {
			return err
		}
		loadedCfg = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question and print the reply",
	Long: `Processes one chat turn and prints the reply.

The serialized conversation context from a previous turn can be passed
with --context and the updated context is printed afterwards, so shell
scripts can chain turns.

Example:
  cinechat ask "je veux un film de 2014 avec du fantastique"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var loadedCfg *config.Config

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	askCmd.Flags().StringVar(&contextFlag, "context", "", "serialized context from a previous turn")
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildCore wires the orchestration pipeline from configuration.
func buildCore(cfg *config.Config) (*orchestrator.Orchestrator, func(), error) {
	local, err := catalog.OpenLocal(cfg.Library.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open library: %w", err)
	}
	if err := local.SeedDemo(context.Background()); err != nil {
		_ = local.Close()
		return nil, nil, err
	}

	remote := catalog.NewRemote(catalog.RemoteConfig{
		APIKey:           cfg.Remote.APIKey,
		BaseURL:          cfg.Remote.BaseURL,
		Timeout:          cfg.Remote.Timeout,
		FailureThreshold: cfg.Remote.FailureThreshold,
		CooldownPeriod:   cfg.Remote.CooldownPeriod,
	}, logger)

	client := llm.New(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxRetries:     cfg.LLM.MaxRetries,
		RateLimitDelay: cfg.LLM.RateLimitDelay,
	}, logger)

	mux := dispatch.NewMux(local, logger)

	shellCfg := agent.Config{
		HistoryWindow: cfg.Agents.HistoryWindow,
		MaxToolRounds: cfg.Agents.MaxToolRounds,
		Temperature:   cfg.LLM.Temperature,
	}

	discoveryCfg := shellCfg
	discoveryCfg.Instructions = cfg.Agents.DiscoveryInstructions
	personCfg := shellCfg
	personCfg.Instructions = cfg.Agents.PersonInstructions
	similarCfg := shellCfg
	similarCfg.Instructions = cfg.Agents.SimilarInstructions

	agents := map[types.IntentType]orchestrator.Agent{
		types.IntentCatalogDiscovery: agent.NewDiscovery(discoveryCfg, client, agent.DiscoveryDeps{
			Dispatcher: mux,
			Remote:     remote,
			PageSize:   cfg.Agents.PageSize,
		}, logger),
		types.IntentPersonLookup: agent.NewPerson(personCfg, client, agent.PersonDeps{
			Remote: remote,
		}, logger),
		types.IntentSimilarMovies: agent.NewSimilar(similarCfg, client, agent.SimilarDeps{
			Dispatcher: mux,
			Remote:     remote,
		}, logger),
	}

	extractor := intent.New(intent.Config{
		Instructions:  cfg.Agents.IntentInstructions,
		HistoryWindow: cfg.Agents.HistoryWindow,
		Temperature:   cfg.LLM.Temperature,
	}, client, logger)

	o := orchestrator.New(extractor, agents, cfg.Agents.MaxSteps, logger)
	cleanup := func() { _ = local.Close() }
	return o, cleanup, nil
}

func runChat() error {
	o, cleanup, err := buildCore(loadedCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("cinechat - tapez votre message, Ctrl+D pour quitter.")

	var history []types.ChatMessage
	var thread string

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		history = append(history, types.ChatMessage{Role: types.RoleUser, Content: line})

		tc, err := o.Turn(ctx, history, thread)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println()
				return nil
			}
			return err
		}

		fmt.Println(tc.Result)
		printAttachments(tc.Attachments)

		history = append(history, types.ChatMessage{Role: types.RoleAssistant, Content: tc.Result})
		thread = tc.Thread
	}
	return scanner.Err()
}

func runAsk(cmd *cobra.Command, args []string) error {
	o, cleanup, err := buildCore(loadedCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	message := strings.Join(args, " ")
	history := []types.ChatMessage{{Role: types.RoleUser, Content: message}}

	tc, err := o.Turn(ctx, history, contextFlag)
	if err != nil {
		return err
	}

	fmt.Println(tc.Result)
	printAttachments(tc.Attachments)
	if tc.Thread != "" {
		fmt.Println("context:", tc.Thread)
	}
	return nil
}

func printAttachments(attachments []types.Attachment) {
	for _, a := range attachments {
		line := fmt.Sprintf("  %d. %s", a.Index+1, a.Title)
		if a.Year != nil {
			line += fmt.Sprintf(" (%d)", *a.Year)
		}
		fmt.Println(line)
	}
}
