package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/gojue/ecaptureQ/internal/cmd/client"
	serverrun "github.com/gojue/ecaptureQ/internal/cmd/server"
	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ecaptureq",
		Short: "ecaptureq capture ingestion and query CLI",
		Long: "ecaptureq ingests captured network events into an in-memory table, " +
			"pushes new rows matching a filter, and serves queries over gRPC and HTTP.",
		SilenceUsage: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start an ecaptureq instance (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			autoStart, _ := cmd.Flags().GetBool("auto-start")
			noCapture, _ := cmd.Flags().GetBool("no-capture")
			persist, _ := cmd.Flags().GetBool("persist-diagnostics")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				Config:             cfg,
				AutoStart:          autoStart,
				NoCapture:          noCapture,
				PersistDiagnostics: persist,
				LogLevel:           logLevel,
				LogFormat:          logFormat,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	addConfigFlags(serverStartCmd)
	serverStartCmd.Flags().Bool("auto-start", false, "Start a capture session once the servers are up")
	serverStartCmd.Flags().Bool("no-capture", false, "Do not spawn the capture binary; only connect to --ws-url")
	serverStartCmd.Flags().Bool("persist-diagnostics", false, "Keep diagnostics on disk under the default data directory")
	serverStartCmd.Flags().String("log-level", os.Getenv("ECAPTUREQ_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("ECAPTUREQ_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	configCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	addConfigFlags(configShowCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	clientcmd.AddCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", os.Getenv("ECAPTUREQ_CONFIG"), "Config file (.yaml/.yml or .json)")
	cmd.Flags().String("http", "", "HTTP listen address (overrides config)")
	cmd.Flags().String("grpc", "", "gRPC listen address (overrides config)")
	cmd.Flags().String("ws-url", "", "Event source WebSocket or tcp:// URL (overrides config)")
	cmd.Flags().String("capture-bin", "", "Capture binary (overrides config)")
	cmd.Flags().String("capture-args", "", "Capture arguments (overrides config)")
	cmd.Flags().String("filter", "", "Initial push filter (overrides config)")
}

// loadConfig layers file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	for flag, dst := range map[string]*string{
		"http":         &cfg.HTTPAddr,
		"grpc":         &cfg.GRPCAddr,
		"ws-url":       &cfg.WSURL,
		"capture-bin":  &cfg.CaptureBin,
		"capture-args": &cfg.CaptureArgs,
		"filter":       &cfg.Filter,
	} {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
		}
	}
	return cfg, cfg.Validate()
}

func apiURL() string {
	if v := os.Getenv("ECAPTUREQ_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
