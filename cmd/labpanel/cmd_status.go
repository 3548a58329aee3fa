package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakbyte/labpanel/internal/aggregator"
	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/ui"
)

var (
	statusConfigPath string
	statusURL        string
)

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", config.DefaultConfigPath, "path to config file")
	statusCmd.Flags().StringVar(&statusURL, "url", "", "panel base URL (default derived from the config file)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live inventory from a running panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := statusURL
		if baseURL == "" {
			cfg, err := config.Load(statusConfigPath)
			if err != nil {
				return fmt.Errorf("loading config (use --url for a remote panel): %w", err)
			}
			host := cfg.Service.BindAddress
			if host == "0.0.0.0" || host == "::" {
				host = "127.0.0.1"
			}
			baseURL = fmt.Sprintf("http://%s:%d", host, cfg.Service.Port)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(baseURL + "/api/inventory")
		if err != nil {
			return fmt.Errorf("reaching panel at %s: %w", baseURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("panel at %s returned %s", baseURL, resp.Status)
		}

		var snap aggregator.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return fmt.Errorf("decoding inventory: %w", err)
		}

		for name, h := range snap.Backends {
			state := ui.Green.Render("healthy")
			if !h.Healthy {
				state = ui.Red.Render("unhealthy")
				if h.LastError != "" {
					state += ui.Dim.Render(" (" + h.LastError + ")")
				}
			}
			fmt.Printf("%s %s\n", ui.Cyan.Render(string(name)+":"), state)
		}
		fmt.Println()

		if len(snap.Resources) == 0 {
			fmt.Println(ui.Dim.Render("No resources in the inventory yet."))
			return nil
		}

		for _, r := range snap.Resources {
			status := ui.StatusStyle(r.Status).Render(r.Status)
			if r.Stale {
				status += ui.Yellow.Render(" (stale)")
			}
			fmt.Printf("  %-10s %-28s %-10s %s\n",
				ui.Dim.Render(r.Kind), ui.White.Render(r.Name), status, ui.Dim.Render(r.ID))
		}
		fmt.Println()
		fmt.Println(ui.Dim.Render(fmt.Sprintf("Snapshot v%d at %s", snap.Version, snap.Taken.Format(time.RFC3339))))

		return nil
	},
}
