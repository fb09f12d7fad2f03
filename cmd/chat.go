package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mcpchat-ai/mcpchat/internal/agent"
	"github.com/mcpchat-ai/mcpchat/internal/config"
	"github.com/mcpchat-ai/mcpchat/internal/mcp"
	"github.com/mcpchat-ai/mcpchat/internal/memory"
)

// runChat wires the full stack (provider, memory store, MCP connections,
// router, agent) and runs the interactive REPL until EOF, "quit", or a
// termination signal.
func runChat() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logLevel := slog.LevelWarn
	if debugFlag {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := initConfig()

	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var mcpCfg *mcp.Config
	if cfg.MCPConfig != "" {
		mcpCfg, err = mcp.LoadConfigFile(cfg.MCPConfig)
	} else {
		cwd, _ := os.Getwd()
		mcpCfg, err = mcp.LoadConfig(cwd)
	}
	if err != nil {
		return fmt.Errorf("loading mcp config: %w", err)
	}

	manager := mcp.NewManager(mcpCfg)
	defer manager.Close()
	for _, connErr := range manager.ConnectAll(ctx) {
		logger.Warn("mcp server unavailable", "error", connErr)
	}

	router := mcp.NewRouter(logger)
	router.Discover(manager)

	a := agent.New(p, router, store, cfg.Chat, logger)

	// Resume a named session up front so the banner shows the right one.
	// The session argument resolves against the loaded store directly, so
	// no fresh session is created just to run the switch.
	if sessionFlag != "" {
		if res, err := a.ProcessQuery(ctx, "", sessionFlag); err == nil && res.Response != "" {
			fmt.Println(res.Response)
		}
	}

	printBanner(p.Name(), p.DefaultModel(), manager, store)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			fmt.Println("Bye.")
			return nil
		}

		res, err := a.ProcessQuery(ctx, line, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if res.Response != "" {
			fmt.Println(res.Response)
		}
		for _, tc := range res.ToolCalls {
			status := "ok"
			if tc.IsError {
				status = "error"
			}
			logger.Debug("tool call", "tool", tc.Tool, "status", status)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Println("Bye.")
	return nil
}

// openStore builds the memory store on the configured snapshot backend.
func openStore(cfg *config.Config, logger *slog.Logger) (*memory.Store, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}

	var snap memory.Snapshotter
	switch cfg.Storage.Backend {
	case "json":
		snap = memory.NewFileSnapshotter(path)
	case "sqlite":
		snap, err = memory.NewSQLiteSnapshotter(path)
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want sqlite or json)", cfg.Storage.Backend)
	}

	return memory.NewStore(snap, cfg.Storage.MaxSessions, logger), nil
}

func printBanner(providerName, model string, manager *mcp.Manager, store *memory.Store) {
	fmt.Printf("mcpchat %s — %s / %s\n", appVersion, providerName, model)

	status := manager.Status()
	if len(status) == 0 {
		fmt.Println("No MCP servers configured (~/.config/mcpchat/mcp.json).")
	} else {
		for name, s := range status {
			fmt.Printf("  mcp %s: %s\n", name, s)
		}
	}

	if sess := store.CurrentSession(); sess != nil {
		fmt.Printf("Session: %s (%d messages)\n", sess.Title, len(sess.Messages))
	}
	fmt.Println(`Type /help for commands, "quit" to exit.`)
}
