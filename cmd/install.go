package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/net2share/go-corelib/osdetect"
	"github.com/net2share/go-corelib/tui"
	"github.com/spf13/cobra"

	"github.com/net2share/jtm/internal/clientconf"
	"github.com/net2share/jtm/internal/installer"
	"github.com/net2share/jtm/internal/proxyconf"
	"github.com/net2share/jtm/internal/record"
	"github.com/net2share/jtm/internal/system"
)

var errCancelled = errors.New("cancelled")

var installDomain string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the juicity proxy server",
	Long: `Provision the juicity proxy server on this host:

  - Verify the domain resolves to this host
  - Install dependencies and the juicity-server binary
  - Obtain a TLS certificate for the domain
  - Configure and start the systemd service
  - Emit a ready-to-use client configuration`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installDomain, "domain", "d", "", "Domain pointing at this host (prompted when omitted)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	if err := osdetect.RequireRoot(); err != nil {
		return err
	}
	if !system.HasSystemd() {
		return errors.New("systemd is required to manage the juicity-server service")
	}

	printBanner()

	if osInfo, err := osdetect.Detect(); err != nil {
		tui.PrintWarning("Could not detect OS: " + err.Error())
	} else {
		tui.PrintInfo("Detected OS: " + osInfo.PrettyName)
	}
	tui.PrintInfo("Architecture: " + osdetect.GetArch())

	domainName, err := resolveDomain(installDomain, "Domain with an A record pointing at this host, e.g. proxy.example.com")
	if err != nil {
		if errors.Is(err, errCancelled) {
			tui.PrintInfo("Cancelled")
			return nil
		}
		return err
	}

	inst := installer.New()
	ctx := context.Background()

	rec, err := inst.Install(ctx, domainName)
	if errors.Is(err, installer.ErrAlreadyInstalled) {
		rec, err = reinstallOverExisting(ctx, inst, domainName)
	}
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	showInstallSuccess(rec)
	return nil
}

// reinstallOverExisting asks the user before tearing down the current
// deployment; overwriting is an explicit decision, never silent.
func reinstallOverExisting(ctx context.Context, inst *installer.Installer, domainName string) (*record.Record, error) {
	existing, err := inst.Record()
	if err != nil || existing == nil {
		return nil, installer.AlreadyInstalledError(domainName)
	}

	tui.PrintWarning(fmt.Sprintf("A deployment for '%s' is already installed", existing.Domain))

	reinstall := false
	if err := huh.NewConfirm().
		Title("Remove it and reinstall?").
		Affirmative("Yes").
		Negative("No").
		Value(&reinstall).
		Run(); err != nil {
		return nil, err
	}
	if !reinstall {
		tui.PrintInfo("Cancelled")
		return nil, nil
	}

	if err := inst.Remove(ctx, existing.Domain); err != nil {
		return nil, fmt.Errorf("failed to remove existing deployment: %w", err)
	}
	return inst.Install(ctx, domainName)
}

func showInstallSuccess(rec *record.Record) {
	profile, err := clientconf.FromRecord(rec)
	if err != nil {
		tui.PrintWarning("Could not derive client profile: " + err.Error())
		return
	}

	lines := []string{
		tui.KV("Domain:      ", rec.Domain),
		tui.KV("Server:      ", profile.Server),
		tui.KV("Service:     ", rec.ServiceName),
		"",
		tui.Header("Share link:"),
		tui.Value(profile.ShareLink()),
	}
	if cfgJSON, err := profile.JSON(); err == nil {
		lines = append(lines, "", tui.Header("NekoRay client config:"), cfgJSON)
	}

	tui.PrintBox("Installation Complete!", lines)

	tui.PrintInfo("Useful commands:")
	fmt.Println(tui.KV(fmt.Sprintf("  systemctl status %s  ", proxyconf.ServiceName), "- Check service status"))
	fmt.Println(tui.KV(fmt.Sprintf("  journalctl -u %s -f  ", proxyconf.ServiceName), "- View live logs"))
	fmt.Println(tui.KV("  jtm check                       ", "- Reprint client config"))
}
