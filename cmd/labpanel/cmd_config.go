package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/ui"
)

var configPath string

func init() {
	configCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to config file")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View labpanel configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		red := cfg.Redacted()

		fmt.Println(ui.Cyan.Render("Proxmox:"))
		fmt.Println(ui.Dim.Render("  URL:        ") + ui.White.Render(red.Proxmox.BaseURL))
		fmt.Println(ui.Dim.Render("  User:       ") + ui.White.Render(red.Proxmox.User))
		fmt.Println(ui.Dim.Render("  Token ID:   ") + ui.White.Render(red.Proxmox.TokenID))
		fmt.Println(ui.Dim.Render("  Secret:     ") + ui.White.Render(red.Proxmox.TokenSecret))
		fmt.Println(ui.Dim.Render("  TLS verify: ") + ui.White.Render(fmt.Sprintf("%v", !red.Proxmox.TLSSkipVerify)))
		fmt.Println(ui.Dim.Render("  Poll:       ") + ui.White.Render(fmt.Sprintf("%ds", red.Proxmox.PollIntervalSeconds)))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Docker:"))
		fmt.Println(ui.Dim.Render("  Socket:     ") + ui.White.Render(red.Docker.SocketPath))
		fmt.Println(ui.Dim.Render("  Poll:       ") + ui.White.Render(fmt.Sprintf("%ds", red.Docker.PollIntervalSeconds)))
		fmt.Println(ui.Dim.Render("  Stop grace: ") + ui.White.Render(fmt.Sprintf("%ds", red.Docker.StopGraceSeconds)))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Service:"))
		fmt.Println(ui.Dim.Render("  Bind:       ") + ui.White.Render(fmt.Sprintf("%s:%d", red.Service.BindAddress, red.Service.Port)))
		fmt.Println(ui.Dim.Render("  Auth:       ") + ui.White.Render(red.Auth.Mode))
		fmt.Println()
		fmt.Println(ui.Dim.Render("Config file: " + configPath))

		return nil
	},
}
