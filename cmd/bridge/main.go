package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yourusername/lolo-bridge/internal/backend"
	"github.com/yourusername/lolo-bridge/internal/bridge"
	"github.com/yourusername/lolo-bridge/internal/commands"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/irc"
	"github.com/yourusername/lolo-bridge/internal/maintenance"
	"github.com/yourusername/lolo-bridge/internal/output"
	"github.com/yourusername/lolo-bridge/internal/plugins"
	"github.com/yourusername/lolo-bridge/internal/shutdown"
	"github.com/yourusername/lolo-bridge/internal/user"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	rollback   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "bridge",
		Short:         "Bridge an IRC network to a websocket command server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := output.NewColorLogger()
			if err := run(cmd.Context(), logger, opts); err != nil {
				logger.Error("%v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to the TOML configuration file")
	cmd.Flags().BoolVar(&opts.rollback, "rollback", false, "roll back the last applied database migration and exit")
	return cmd
}

func run(ctx context.Context, logger *output.ColorLogger, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Lolo IRC bridge - starting...")

	cfg, err := config.LoadOrCreate(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetTraffic(cfg.Logging.Traffic)
	logger.Success("Configuration loaded from %s", opts.configPath)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Success("Database initialized")

	if opts.rollback {
		defer func() { _ = db.Close() }()
		logger.Info("Rolling back last migration...")
		if err := db.Rollback(); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		logger.Success("Migration rolled back successfully")
		return nil
	}

	out, err := output.NewOutput(logger, cfg.Logging.ErrorLog, cfg.Logging.MaxLogSizeMB, cfg.Logging.MaxLogFiles)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize error log: %w", err)
	}
	errHandler := errors.NewErrorHandler(out)

	users := user.NewManager(db)
	if err := ensureOwnerPassword(users, cfg, logger); err != nil {
		_ = db.Close()
		return err
	}

	scheduler := maintenance.New(db, logger, cfg.Database.GetVacuumIntervalDuration(), cfg.Database.MessageRetentionDays)
	if err := scheduler.Start(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := commands.NewRegistry()
	dispatcher := commands.NewDispatcher(registry, errHandler, logger)
	loader := plugins.NewLoader(cfg.Plugins, registry, logger)
	channels := irc.NewChannelList(cfg.Bot.Channel, cfg.Bot.Channels)

	builtins := commands.RegisterBuiltins(commands.Deps{
		Config:     cfg,
		ConfigPath: opts.configPath,
		DB:         db,
		Users:      users,
		Dispatcher: dispatcher,
		Bundles:    loader,
		Channels:   channels,
		Logger:     logger,
		Context:    ctx,
		StartTime:  time.Now(),
	})
	logger.Info("Registered %d built-in commands", registry.Len())

	if cfg.Plugins.Autoload {
		n, err := loader.LoadAll()
		if err != nil {
			logger.Warning("Plugin autoload failed: %v", err)
		} else {
			logger.Success("Loaded %d plugin(s) from %s", n, loader.Dir())
		}
	}

	deps := bridge.Deps{
		Config:     cfg,
		DB:         db,
		Logger:     logger,
		Errors:     errHandler,
		Chat:       irc.NewSupervisor(cfg, channels, logger),
		Backend:    backend.NewSupervisor(cfg, logger),
		Dispatcher: dispatcher,
		Bundles:    loader,
		Followups:  builtins.Followups(),
	}
	if cfg.Plugins.Watch {
		watcher, err := plugins.NewWatcher(cfg.Plugins.Dir, logger)
		if err != nil {
			logger.Warning("Plugin watching disabled: %v", err)
		} else {
			deps.Watcher = watcher
		}
	}
	b := bridge.New(deps)

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	handler := shutdown.NewHandler(logger, shutdownTimeout)
	defer handler.Stop()

	handler.Register("chat connection", func() error {
		b.StopChat()
		return nil
	})
	handler.Register("command server", func() error {
		deps.Backend.Close()
		return nil
	})
	handler.Register("chat quit", func() error {
		// the chat loop already sent QUIT when it stopped
		if err := deps.Chat.Quit(""); err != nil && !stderrors.Is(err, irc.ErrNotConnected) {
			return err
		}
		return nil
	})
	handler.Register("maintenance", scheduler.Stop)
	handler.Register("event loop", func() error {
		cancel()
		return <-runDone
	})
	handler.Register("database", func() error {
		if err := db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		logger.Success("Database connection closed")
		return nil
	})

	logger.Success("Bridge running. Press Ctrl+C to stop.")
	handler.Wait(ctx)
	logger.Success("Lolo IRC bridge has shut down. Goodbye!")
	return nil
}

// ensureOwnerPassword prompts for the owner password on first start
func ensureOwnerPassword(users *user.Manager, cfg *config.Config, logger output.Logger) error {
	has, err := users.HasOwnerPassword()
	if err != nil {
		return fmt.Errorf("failed to check owner password: %w", err)
	}
	if has {
		return nil
	}

	logger.Info("No owner password set. It is used with the verify command via PM to become owner.")
	password, err := readPassword("Enter owner password: ")
	if err != nil {
		return fmt.Errorf("failed to read owner password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("owner password must not be empty")
	}
	if err := users.SetOwnerPassword(password); err != nil {
		return fmt.Errorf("failed to set owner password: %w", err)
	}

	logger.Success("Owner password set")
	logger.Info("To become owner, send via PM (not in a channel): /msg %s %sverify <password>",
		cfg.Server.Nickname, cfg.Bot.CommandPrefix)
	return nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
