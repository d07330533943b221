package cmd

import (
	"context"
	"errors"

	"github.com/net2share/go-corelib/osdetect"
	"github.com/net2share/go-corelib/tui"
	"github.com/spf13/cobra"

	"github.com/net2share/jtm/internal/download"
	"github.com/net2share/jtm/internal/installer"
)

var removeDomain string

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Uninstall the juicity deployment",
	Long: `Tear down the deployment installed by 'jtm install'.

The domain you name must match the one the deployment is bound to; this
is the ownership check that prevents removing someone else's setup.

This will:
  - Stop and unregister the juicity-server service
  - Remove the server configuration
  - Revoke and delete the TLS certificate (best effort)
  - Clear the installation record

The juicity-server binary and OS packages are kept for reinstallation
unless --purge is given.`,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVarP(&removeDomain, "domain", "d", "", "Domain the deployment is bound to (prompted when omitted)")
	removeCmd.Flags().BoolP("force", "f", false, "Skip confirmation")
	removeCmd.Flags().Bool("purge", false, "Also remove the juicity-server binary")
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := osdetect.RequireRoot(); err != nil {
		return err
	}

	domainName, err := resolveDomain(removeDomain, "Domain this deployment is bound to")
	if err != nil {
		if errors.Is(err, errCancelled) {
			tui.PrintInfo("Cancelled")
			return nil
		}
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		confirm, err := tui.RunConfirm(tui.ConfirmConfig{
			Title:       "Remove the deployment for '" + domainName + "'?",
			Description: "Stops the service and revokes its certificate",
		})
		if err != nil {
			return err
		}
		if !confirm {
			tui.PrintInfo("Cancelled")
			return nil
		}
	}

	if err := installer.New().Remove(context.Background(), domainName); err != nil {
		return err
	}

	if purge, _ := cmd.Flags().GetBool("purge"); purge {
		download.RemoveBinary(download.BinaryName)
		tui.PrintStatus("juicity-server binary removed")
	}

	tui.PrintSuccess("Deployment removed")
	return nil
}
