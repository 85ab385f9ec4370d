package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jumptrainer/internal/config"
	"jumptrainer/internal/observability"
	"jumptrainer/pkg/jumptrainer"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// flagKeys maps command flags onto config keys. A flag only overrides its
// key when the running command defines it.
var flagKeys = map[string]string{
	"store":     "store.kind",
	"db-path":   "store.db_path",
	"log-level": "logger.level",
	"agents":    "simulation.agent_count",
	"episodes":  "simulation.episode_budget",
	"tps":       "simulation.ticks_per_second",
	"seed":      "simulation.seed",
	"script":    "simulation.script_path",
	"out":       "exports.dir",
	"addr":      "server.addr",
	"max-fps":   "server.max_fps",
	"workers":   "evaluate.workers",
}

// app carries state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	flush   func()
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), flush: func() {}}

	root := &cobra.Command{
		Use:           "jumptrainerctl",
		Short:         "Train toy agents to jump over obstacles.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("store", "sqlite", "store backend: memory|sqlite")
	flags.String("db-path", "jumptrainer.db", "sqlite database path")
	flags.String("log-level", "info", "log level")

	root.AddCommand(
		newRunCmd(a),
		newRunsCmd(a),
		newShowCmd(a),
		newEpisodesCmd(a),
		newExportCmd(a),
		newEvaluateCmd(a),
		newSignatureCmd(a),
		newServeCmd(a),
		newResetCmd(a),
		newVersionCmd(),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := a.v.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
	a.logger = observability.GetLogger()

	flush, err := observability.InitErrorReporting(cfg.Sentry, Version)
	if err != nil {
		a.logger.Warn("error reporting disabled", zap.Error(err))
	} else {
		a.flush = flush
	}
	a.logger.Debug("starting", zap.String("command", cmd.Name()), zap.String("version", Version))
	return nil
}

// close reports a failed command and flushes pending log and error events.
func (a *app) close(err error) {
	if err != nil && a.logger != nil {
		observability.ReportError(err, "command failed")
	}
	a.flush()
	observability.Sync()
}

func (a *app) client() (*jumptrainer.Client, error) {
	if a.cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return jumptrainer.New(jumptrainer.Options{
		StoreKind:  a.cfg.Store.Kind,
		DBPath:     a.cfg.Store.DBPath,
		ExportsDir: a.cfg.Exports.Dir,
		Logger:     a.logger,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "jumptrainerctl %s\n", Version)
			return nil
		},
	}
}
