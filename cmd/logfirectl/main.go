// Command logfirectl sends test telemetry and inspects client configuration.
//
//	logfirectl send --message "deploy finished" --level info --metric deploys.total=1
//	logfirectl config --file /etc/logfire.yaml
//	logfirectl usage
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/itsneelabh/agentcontracts"
	"github.com/itsneelabh/agentcontracts/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "logfirectl",
		Short:         "Send and inspect LogFire telemetry",
		Version:       agentcontracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSendCmd(), newConfigCmd(), newUsageCmd())
	return root
}

func newSendCmd() *cobra.Command {
	var (
		message   string
		level     string
		metrics   []string
		local     bool
		configRef string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one log entry and any metrics, then flush",
		Long: `Builds a client from LOGFIRE_* environment variables, records the
given entry and metrics, and flushes them. Exits non-zero if the
collector did not accept the batch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := telemetry.ParseLogLevel(level)
			if err != nil {
				return err
			}
			samples, err := parseMetrics(metrics)
			if err != nil {
				return err
			}

			var opts []telemetry.Option
			if configRef != "" {
				opts = append(opts, telemetry.WithConfigFile(configRef))
			}
			if local {
				opts = append(opts, telemetry.WithLocalOnly(true))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := telemetry.SetupFromEnv(ctx, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = client.Shutdown(context.Background()) }()

			return send(ctx, client, lvl, message, samples)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "logfirectl test event", "log message to send")
	cmd.Flags().StringVarP(&level, "level", "l", "info", "log level (debug, info, warning, error, critical)")
	cmd.Flags().StringArrayVar(&metrics, "metric", nil, "metric to record as name=value (repeatable)")
	cmd.Flags().BoolVar(&local, "local", false, "write batches to stderr instead of the collector")
	cmd.Flags().StringVarP(&configRef, "file", "f", "", "YAML or JSON config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

type metricArg struct {
	name  string
	value float64
}

func parseMetrics(args []string) ([]metricArg, error) {
	out := make([]metricArg, 0, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("metric %q must be name=value", arg)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", arg, err)
		}
		out = append(out, metricArg{name: strings.TrimSpace(name), value: v})
	}
	return out, nil
}

func send(ctx context.Context, client *telemetry.Client, level telemetry.LogLevel, message string, metrics []metricArg) error {
	client.Log(ctx, level, message,
		telemetry.WithComponent(telemetry.ComponentSystem),
		telemetry.WithField("source", "logfirectl"),
	)
	for _, m := range metrics {
		client.RecordMetric(ctx, m.name, m.value, map[string]string{"source": "logfirectl"})
	}

	if !client.Flush(ctx) {
		stats := client.Stats()
		return fmt.Errorf("flush failed (batches failed: %d, dropped: %d)", stats.BatchesFailed, stats.BatchesDropped)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context(), file)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON config file")
	return cmd
}

// resolveConfig layers defaults, the optional file and the environment
// without validating, so that incomplete setups can still be inspected.
func resolveConfig(ctx context.Context, file string) (telemetry.Config, error) {
	cfg := telemetry.DefaultConfig()
	if file != "" {
		if err := cfg.LoadFromFile(file); err != nil {
			return telemetry.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(ctx); err != nil {
		return telemetry.Config{}, err
	}
	return cfg, nil
}

func printConfig(w io.Writer, cfg telemetry.Config) error {
	cfg.APIKey = maskSecret(cfg.APIKey)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print this process's resource usage as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := telemetry.CurrentResourceUsage(cmd.Context())
			if err != nil {
				return err
			}
			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(usage, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
