// Package cli builds the advtxt-db command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	"github.com/advtxt/advtxt-db-mongo/pkg/server"
	"github.com/advtxt/advtxt-db-mongo/pkg/store"
	"github.com/advtxt/advtxt-db-mongo/pkg/version"
)

// StoreFactory opens a record store from configuration.
type StoreFactory func(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (store.RecordStore, error)

// ServiceCommandOptions configures NewServiceCommand.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Optional: defaults to store.NewStorageAdapter.
	StoreFactory StoreFactory

	// Optional: server startup logic. Defaults to server.RunWithSignals with
	// the opened store.
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger, st store.RecordStore) error

	// Optional: where log entries go. Defaults to stderr.
	LogOutput io.Writer
}

// NewServiceCommand creates the CLI with version, config, healthcheck,
// insert-one, find-one, update and serve subcommands.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "advtxt-db"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "ADVTXT"
	}
	if opts.StoreFactory == nil {
		opts.StoreFactory = store.NewStorageAdapter
	}
	if opts.RunServer == nil {
		opts.RunServer = runServer
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.String("adapter", "", "storage adapter (mongodb)")
	flags.String("mongodb-uri", "", "MongoDB connection string")
	flags.String("mongodb-database", "", "database name, overrides the one in the URI")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.Int("management-port", 0, "management server port")

	loadConfig := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, cmd.Flags(), opts.LogOutput)
	}

	// withStore loads configuration, opens the store and closes it when fn
	// returns. Each invocation carries its own request ID.
	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, st store.RecordStore) error) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := logger.ContextWithRequestID(cmd.Context(), uuid.NewString())
		log = log.WithContext(ctx).With("command", cmd.Name())

		st, err := opts.StoreFactory(ctx, cfg.StoreConfig, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Warn("failed to close store", "error", closeErr)
			}
		}()
		return fn(ctx, st)
	}

	// version command
	var versionOutput string
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout(), version.Current(opts.Name), versionOutput)
		},
	}
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "text", "output format (text, json, yaml)")
	rootCmd.AddCommand(versionCmd)

	// config command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration with credentials redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := formatSettings(cfg.Settings())
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	})

	// healthcheck command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Connect to the configured database and ping it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st store.RecordStore) error {
				if err := st.HealthCheck(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			})
		},
	})

	// insert-one command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "insert-one <collection> <json>",
		Short: "Insert one record and print it with its _id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := readDocument(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, st store.RecordStore) error {
				rec, err := st.InsertOne(ctx, args[0], item)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), rec)
			})
		},
	})

	// find-one command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "find-one <collection> [json-selector]",
		Short: "Print the first record matching the selector, or null",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := store.Record{}
			if len(args) == 2 {
				var err error
				if selector, err = readDocument(cmd.InOrStdin(), args[1]); err != nil {
					return err
				}
			}
			return withStore(cmd, func(ctx context.Context, st store.RecordStore) error {
				rec, err := st.FindOne(ctx, args[0], selector)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), rec)
			})
		},
	})

	// update command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "update <collection> <json-selector> <json-patch>",
		Short: "Set the patch fields on every matching record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := readDocument(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			patch, err := readDocument(cmd.InOrStdin(), args[2])
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, st store.RecordStore) error {
				updated, err := st.Update(ctx, args[0], selector, patch)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), store.Record{"updated": updated})
			})
		},
	})

	// serve command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Connect to the database and run the management server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := logger.ContextWithRequestID(cmd.Context(), uuid.NewString())
			st, err := opts.StoreFactory(ctx, cfg.StoreConfig, log)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := st.Close(); closeErr != nil {
					log.Warn("failed to close store", "error", closeErr)
				}
			}()
			return opts.RunServer(ctx, cfg, log, st)
		},
	})

	return rootCmd
}

// LoadConfigAndLogger loads configuration with precedence flags > env > file >
// defaults and builds the logger it describes.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags *pflag.FlagSet, logOutput io.Writer) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
		Output: logOutput,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

// Execute runs the command and exits with status 1 on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, log logger.Logger, st store.RecordStore) error {
	return server.RunWithSignals(&server.RunOptions{
		Config: cfg,
		Logger: log,
		Store:  st,
	})
}

func printVersion(w io.Writer, info version.Info, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		_, err := fmt.Fprintf(w, "Service:    %s\nVersion:    %s\nCommit:     %s\nBuild Time: %s\nGo:         %s\n",
			info.Service, info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return err
	case "json":
		return writeJSON(w, info)
	case "yaml":
		data, err := yaml.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format %q (supported: text, json, yaml)", format)
	}
}

func formatSettings(settings map[string]interface{}) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration", "config", cfg.Settings())
}
