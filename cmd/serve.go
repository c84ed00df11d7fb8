package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/config"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/server"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath overrides the configuration directory. When empty the
// user-level directory (~/.config/fhir-mcp) is used.
var serveConfigPath string

// serveTransport and servePort override the corresponding config values when
// set on the command line.
var serveTransport string
var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FHIR MCP server",
	Long: `Starts the MCP server that exposes FHIR operations and credential
management as tools.

By default it speaks MCP over stdio, which is what assistant hosts expect
when they launch the binary themselves. With --transport streamable-http it
listens on an HTTP port instead.

Configuration is read from config.yaml in the configuration directory
(--config-path, default ~/.config/fhir-mcp) and reloaded automatically when
the file changes. The FHIR_MCP_BEARER_TOKEN and FHIR_MCP_CLIENT_SECRET
environment variables override the corresponding file values so secrets
never have to live on disk.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelInfo
	if serveDebug {
		logLevel = logging.LevelDebug
	}
	// Log to stderr: with the stdio transport, stdout carries the protocol.
	logging.Init(logLevel, os.Stderr)

	configPath := serveConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if !serveDebug {
		logging.Init(logging.ParseLevel(cfg.Server.LogLevel), os.Stderr)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry := credentials.NewRegistry(credentials.NewManager(cfg.CredentialConfig()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(configPath, registry)
	if err != nil {
		// A missing config directory is fine; hot reload just stays off.
		logging.Warn("Server", "Configuration watching disabled: %v", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Close()
	}

	return server.New(cfg, rootCmd.Version, registry).Start(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default ~/.config/fhir-mcp)")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "MCP transport: stdio or streamable-http (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port for the streamable-http transport (overrides config)")
}
