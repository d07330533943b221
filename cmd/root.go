// Package cmd provides the Cobra CLI for jtm.
package cmd

import (
	"os"
	"strings"

	"github.com/net2share/go-corelib/tui"
	"github.com/spf13/cobra"
)

// Version and BuildTime are set at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const jtmBanner = `
       _ __
      (_) /_____ ___
     / / __/ __  __ \
    / / /_/ / / / / /
 __/ /\__/_/ /_/ /_/
/___/
`

var rootCmd = &cobra.Command{
	Use:   "jtm",
	Short: "Juicity Tunnel Manager",
	Long:  "Juicity Tunnel Manager - one-shot juicity proxy deployment\nhttps://github.com/net2share/jtm",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.Version = Version

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(checkCmd)

	// Service relays
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(logsCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(version, buildTime string) {
	Version = version
	BuildTime = buildTime
	rootCmd.Version = version + " (built " + buildTime + ")"
}

// printBanner displays the jtm banner with version info.
func printBanner() {
	tui.PrintBanner(tui.BannerConfig{
		AppName:   "Juicity Tunnel Manager",
		Version:   Version,
		BuildTime: BuildTime,
		ASCII:     jtmBanner,
	})
}

// resolveDomain yields the deployment domain from the flag value or an
// interactive prompt; the rest of the pipeline does not care which.
func resolveDomain(flagValue, description string) (string, error) {
	if d := strings.TrimSpace(flagValue); d != "" {
		return d, nil
	}

	for {
		value, confirmed, err := tui.RunInput(tui.InputConfig{
			Title:       "Domain",
			Description: description,
		})
		if err != nil {
			return "", err
		}
		if !confirmed {
			return "", errCancelled
		}
		if d := strings.TrimSpace(value); d != "" {
			return d, nil
		}
		tui.PrintError("A domain is required")
	}
}
