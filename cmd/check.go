package cmd

import (
	"fmt"

	"github.com/net2share/go-corelib/tui"
	"github.com/spf13/cobra"

	"github.com/net2share/jtm/internal/clientconf"
	"github.com/net2share/jtm/internal/installer"
	"github.com/net2share/jtm/internal/record"
)

var checkQR bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the client configuration",
	Long:  "Re-derive and print the client connection profile from the installation record.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkQR, "qr", false, "Render the share link as a QR code")
}

func runCheck(cmd *cobra.Command, args []string) error {
	rec, err := record.NewStore().Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return installer.NoInstallationError()
	}
	if rec.Status != record.StatusActive {
		return fmt.Errorf("deployment is %s, not active", rec.Status)
	}

	profile, err := clientconf.FromRecord(rec)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(tui.Header("--> Juicity share link"))
	fmt.Println(tui.Value(profile.ShareLink()))

	if checkQR {
		qr, err := profile.QR()
		if err != nil {
			return err
		}
		fmt.Println(qr)
	}

	cfgJSON, err := profile.JSON()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(tui.Header("--> NekoRay custom core config"))
	fmt.Println(tui.KV("# Address: ", rec.ServerIP))
	fmt.Println(tui.KV("# Port:    ", fmt.Sprintf("%d", rec.ListenPort)))
	fmt.Println(tui.KV("# Command: ", "run -c %config%"))
	fmt.Println(tui.KV("# Core:    ", "juicity"))
	fmt.Println()
	fmt.Println(cfgJSON)

	return nil
}
