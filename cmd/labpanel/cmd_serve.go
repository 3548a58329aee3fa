package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakbyte/labpanel/internal/aggregator"
	"github.com/oakbyte/labpanel/internal/backend"
	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/dispatcher"
	"github.com/oakbyte/labpanel/internal/docker"
	"github.com/oakbyte/labpanel/internal/proxmox"
	"github.com/oakbyte/labpanel/internal/server"
)

var (
	serveConfigPath string
	serveDataDir    string
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath, "path to config file")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", config.DefaultDataDir, "path to data directory (for actions.db)")
	rootCmd.AddCommand(serveCmd)
}

// buildClients constructs fresh backend clients from a config. Called at
// startup and again whenever the operator reconfigures: clients are
// replaced whole, never mutated.
func buildClients(cfg *config.Config) (pve, dock backend.Client, err error) {
	pveClient, err := proxmox.NewClient(proxmox.ClientConfig{
		BaseURL:       cfg.Proxmox.BaseURL,
		TokenID:       cfg.Proxmox.TokenID,
		TokenSecret:   cfg.Proxmox.TokenSecret,
		TLSSkipVerify: cfg.Proxmox.TLSSkipVerify,
		TLSCACertPath: cfg.Proxmox.TLSCACertPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating proxmox client: %w", err)
	}

	dockerClient, err := docker.NewClient(docker.ClientConfig{
		SocketPath:       cfg.Docker.SocketPath,
		StopGraceSeconds: cfg.Docker.StopGraceSeconds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating docker client: %w", err)
	}

	return pveClient, dockerClient, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the labpanel service",
	RunE: func(cmd *cobra.Command, args []string) error {
		var store *config.Store
		if _, err := os.Stat(serveConfigPath); err == nil {
			store, err = config.NewStore(serveConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		} else {
			// No config yet: start unconfigured so the settings API can
			// run the first-time setup. Backends idle until configured.
			fmt.Fprintf(os.Stderr, "warning: no config at %s, starting unconfigured (run `labpanel setup` or use the settings API)\n", serveConfigPath)
			store = config.NewStoreWith(serveConfigPath, nil)
		}

		fmt.Printf("labpanel starting...\n")

		agg := aggregator.New(aggregator.WithStaleThreshold(config.DefaultStaleThreshold))
		var pveClient, dockerClient backend.Client
		pveInterval := time.Duration(config.DefaultPollIntervalSeconds) * time.Second
		dockerInterval := pveInterval

		if cfg := store.Current(); cfg != nil {
			var err error
			pveClient, dockerClient, err = buildClients(cfg)
			if err != nil {
				return err
			}
			pveInterval = time.Duration(cfg.Proxmox.PollIntervalSeconds) * time.Second
			dockerInterval = time.Duration(cfg.Docker.PollIntervalSeconds) * time.Second

			red := cfg.Redacted()
			fmt.Printf("  proxmox: %s (token %s, poll %s)\n", red.Proxmox.BaseURL, red.Proxmox.TokenID, pveInterval)
			fmt.Printf("  docker:  %s (poll %s)\n", red.Docker.SocketPath, dockerInterval)
			fmt.Printf("  listen:  %s:%d\n", cfg.Service.BindAddress, cfg.Service.Port)
			fmt.Printf("  auth:    %s\n", cfg.Auth.Mode)
		}

		agg.Register(backend.PVE, pveClient, pveInterval)
		agg.Register(backend.Docker, dockerClient, dockerInterval)

		if err := os.MkdirAll(serveDataDir, 0750); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		actionStore, err := dispatcher.NewStore(filepath.Join(serveDataDir, "actions.db"))
		if err != nil {
			return fmt.Errorf("opening action store: %w", err)
		}
		defer actionStore.Close()
		fmt.Printf("  actions: db ready (%s/actions.db)\n", serveDataDir)

		disp := dispatcher.New(agg, actionStore)
		disp.Register(backend.PVE, pveClient)
		disp.Register(backend.Docker, dockerClient)

		rebuild := func(cfg *config.Config) error {
			pve, dock, err := buildClients(cfg)
			if err != nil {
				return err
			}
			agg.ReplaceClient(backend.PVE, pve, time.Duration(cfg.Proxmox.PollIntervalSeconds)*time.Second)
			agg.ReplaceClient(backend.Docker, dock, time.Duration(cfg.Docker.PollIntervalSeconds)*time.Second)
			disp.ReplaceClient(backend.PVE, pve)
			disp.ReplaceClient(backend.Docker, dock)
			return nil
		}

		srv := server.New(store, agg, disp, rebuild)

		pollCtx, stopPolling := context.WithCancel(context.Background())
		defer stopPolling()
		pollDone := make(chan struct{})
		go func() {
			agg.Run(pollCtx)
			close(pollDone)
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			fmt.Printf("\nListening on http://%s\n", srv.Addr())
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "server error: %v\n", err)
				os.Exit(1)
			}
		}()

		<-sig
		fmt.Println("\nShutting down...")

		stopPolling()
		<-pollDone
		disp.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}
