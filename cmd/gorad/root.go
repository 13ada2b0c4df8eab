package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/armon/go-metrics"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/GPTx-global/gora/oracle/config"
	"github.com/GPTx-global/gora/oracle/daemon"
	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/wasm"
	"github.com/GPTx-global/gora/oracle/worker"
	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/client/cli"
	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	FlagHome      = "home"
	FlagLogToFile = "log-to-file"
)

// NewRootCmd creates the gorad command tree. Flags can also be set through
// GORA_* environment variables, e.g. GORA_HOME or GORA_OUTPUT.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "gorad",
		Short:         "Oracle request toolkit: build, decode and preview requests, run the local API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd, v)
		},
	}

	rootCmd.PersistentFlags().String(FlagHome, config.DefaultHome(), "directory for config and data")
	rootCmd.PersistentFlags().StringP(cli.FlagOutput, "o", cli.OutputJSON, "output format (json|yaml|text)")
	rootCmd.PersistentFlags().Bool(cli.FlagDebug, false, "dump decoded values to stderr")

	rootCmd.AddCommand(
		cli.GetBuildCmd(),
		cli.GetDecodeCmd(),
		cli.GetCmdBoxKey(),
		configCmd(v),
		inspectCmd(),
		previewCmd(v),
		demoCmd(v),
		startCmd(v),
	)

	return rootCmd
}

// bindFlags lets GORA_<FLAG> fill any persistent flag the user did not set.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	for _, name := range []string{FlagHome, cli.FlagOutput, cli.FlagDebug} {
		f := flags.Lookup(name)
		if f == nil || f.Changed || !v.IsSet(name) {
			continue
		}
		if err := flags.Set(name, v.GetString(name)); err != nil {
			return fmt.Errorf("invalid %s_%s: %w", config.EnvPrefix, strings.ToUpper(name), err)
		}
	}
	return nil
}

func homeDir(v *viper.Viper) string {
	if home := v.GetString(FlagHome); home != "" {
		return home
	}
	return config.DefaultHome()
}

// printValue writes v as JSON, or YAML when --output asks for it.
func printValue(cmd *cobra.Command, v any) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	switch out, _ := cmd.Flags().GetString(cli.FlagOutput); out {
	case "", cli.OutputJSON:
		cmd.Println(string(bz))
	case cli.OutputYAML, cli.OutputText:
		if bz, err = yaml.JSONToYAML(bz); err != nil {
			return err
		}
		cmd.Print(string(bz))
	default:
		return fmt.Errorf("unknown output format %q", out)
	}
	return nil
}

func configCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the gorad configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write the default config file into the home directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				home := homeDir(v)
				if err := config.WriteDefault(home); err != nil {
					return err
				}
				cmd.Printf("wrote %s/%s\n", home, config.FileName)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved configuration, environment overrides applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(homeDir(v))
				if err != nil {
					return err
				}
				cfg.Print()

				bz, err := toml.Marshal(cfg)
				if err != nil {
					return err
				}
				cmd.Print(string(bz))
				return nil
			},
		},
	)
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [module.wasm]",
		Short: "Check that a compiled off-chain module can be executed by a responder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read module: %w", err)
			}
			info, err := wasm.Inspect(cmd.Context(), module)
			if err != nil {
				return err
			}
			return printValue(cmd, info)
		},
	}
}

func previewCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "preview [sources.json|-|inline-json]",
		Short: "Fetch URL sources locally and show the values a responder would extract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(homeDir(v))
			if err != nil {
				return err
			}
			sources, err := cli.ParseSourcesJSON(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			spec, err := builder.NewURLRequest(sources, types.AggregationNone, nil)
			if err != nil {
				return err
			}

			pool := worker.NewPool(worker.NewExecutor(cfg.PreviewTimeout(), cfg.Preview.UserAgent), cfg.Preview.Workers)
			report, err := pool.Preview(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printValue(cmd, report)
		},
	}
}

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := homeDir(v)

			if toFile, _ := cmd.Flags().GetBool(FlagLogToFile); toFile {
				if _, err := log.ResetLogger(home); err != nil {
					return err
				}
			}

			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			cfg.Print()

			sink := metrics.NewInmemSink(10*time.Second, time.Minute)
			if _, err := metrics.NewGlobal(metrics.DefaultConfig("gorad"), sink); err != nil {
				return err
			}

			db, err := daemon.OpenDB(cfg)
			if err != nil {
				return err
			}

			d := daemon.New(cfg, db, sink)
			defer d.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.Start(ctx)
		},
	}

	cmd.Flags().Bool(FlagLogToFile, false, "write logs under <home>/logs instead of the console")
	return cmd
}
