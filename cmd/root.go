package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command of the FHIR MCP adapter. Running it without a
// subcommand prints the help text; the actual server lives in `serve`.
var rootCmd = &cobra.Command{
	Use:   "fhir-mcp",
	Short: "Expose a FHIR server to AI assistants over MCP",
	Long: `fhir-mcp is an MCP (Model Context Protocol) server that gives AI
assistants safe access to a FHIR R4 server. It handles the credential
lifecycle on their behalf: static bearer tokens, OAuth2 client-credentials
with token caching, and SMART well-known endpoint discovery.`,
	// SilenceUsage keeps error output clean; handled errors should not dump
	// the usage text.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "fhir-mcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
