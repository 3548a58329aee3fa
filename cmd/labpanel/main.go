package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oakbyte/labpanel/internal/ui"
	"github.com/oakbyte/labpanel/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "labpanel",
	Short:   "Homelab control panel for Proxmox VE and Docker",
	Version: version.Version,
}

func init() {
	rootCmd.Long = ui.Green.Render("labpanel") + " " + ui.Cyan.Render(version.Version) + "\n" +
		ui.Dim.Render("One panel for the homelab: live status and lifecycle control for Proxmox VMs, LXC containers, and local Docker containers.")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
