package cmd

import (
	"fmt"

	"github.com/net2share/go-corelib/osdetect"
	"github.com/net2share/go-corelib/tui"
	"github.com/spf13/cobra"

	"github.com/net2share/jtm/internal/proxyconf"
	"github.com/net2share/jtm/internal/record"
	"github.com/net2share/jtm/internal/service"
)

var logsLines int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployment and service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := record.NewStore().Load()
		if err != nil {
			return err
		}

		if rec == nil {
			tui.PrintInfo("No deployment installed")
			return nil
		}

		mgr := service.DefaultManager()
		state := "inactive"
		if mgr.IsServiceActive(rec.ServiceName) {
			state = "active"
		}

		lines := []string{
			tui.KV("Domain:      ", rec.Domain),
			tui.KV("Status:      ", string(rec.Status)),
			tui.KV("Server IP:   ", rec.ServerIP),
			tui.KV("Listen port: ", fmt.Sprintf("%d", rec.ListenPort)),
			tui.KV("Service:     ", rec.ServiceName),
			tui.KV("Service state: ", state),
			tui.KV("Installed at:  ", rec.InstalledAt.Format("2006-01-02 15:04:05 MST")),
		}
		tui.PrintBox("Deployment Status", lines)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the juicity-server service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := osdetect.RequireRoot(); err != nil {
			return err
		}
		if err := service.DefaultManager().StartService(proxyconf.ServiceName); err != nil {
			return err
		}
		tui.PrintSuccess("Service started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the juicity-server service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := osdetect.RequireRoot(); err != nil {
			return err
		}
		if err := service.DefaultManager().StopService(proxyconf.ServiceName); err != nil {
			return err
		}
		tui.PrintSuccess("Service stopped")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the juicity-server service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := osdetect.RequireRoot(); err != nil {
			return err
		}
		if err := service.DefaultManager().RestartService(proxyconf.ServiceName); err != nil {
			return err
		}
		tui.PrintSuccess("Service restarted")
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent juicity-server logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := service.DefaultManager().GetServiceLogs(proxyconf.ServiceName, logsLines)
		if err != nil {
			return err
		}
		fmt.Print(logs)
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of log lines to show")
}
