package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/ui"
)

var setupConfigPath string

func init() {
	setupCmd.Flags().StringVar(&setupConfigPath, "config", config.DefaultConfigPath, "path to config file")
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers collects the wizard's raw input; numbers stay strings until
// validated.
type setupAnswers struct {
	BaseURL       string
	User          string
	TokenID       string
	TokenSecret   string
	TLSSkipVerify bool
	SocketPath    string
	PollStr       string
	EnableAuth    bool
	Password      string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		answers := setupAnswers{
			SocketPath: config.DefaultDockerSocket,
			PollStr:    strconv.Itoa(config.DefaultPollIntervalSeconds),
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewNote().
					Title("labpanel setup").
					Description("Connect your Proxmox VE host and the local Docker daemon.\nYou need a PVE API token (Datacenter → Permissions → API Tokens)."),
				huh.NewInput().
					Title("Proxmox base URL").
					Placeholder("https://192.168.1.10:8006").
					Value(&answers.BaseURL).
					Validate(nonEmpty("base URL")),
				huh.NewInput().
					Title("Proxmox user").
					Placeholder("root@pam").
					Value(&answers.User).
					Validate(nonEmpty("user")),
				huh.NewInput().
					Title("API token ID").
					Placeholder("root@pam!labpanel").
					Value(&answers.TokenID).
					Validate(nonEmpty("token ID")),
				huh.NewInput().
					Title("API token secret").
					EchoMode(huh.EchoModePassword).
					Value(&answers.TokenSecret).
					Validate(nonEmpty("token secret")),
				huh.NewConfirm().
					Title("Skip TLS certificate verification?").
					Description("Only for self-signed certs you trust. Prefer pinning a CA cert in the config file.").
					Value(&answers.TLSSkipVerify),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Docker socket path").
					Value(&answers.SocketPath).
					Validate(nonEmpty("socket path")),
				huh.NewInput().
					Title("Poll interval (seconds)").
					Value(&answers.PollStr).
					Validate(func(s string) error {
						n, err := strconv.Atoi(s)
						if err != nil || n < 1 {
							return fmt.Errorf("enter a whole number >= 1")
						}
						return nil
					}),
				huh.NewConfirm().
					Title("Protect the panel with a password?").
					Value(&answers.EnableAuth),
			),
		).WithTheme(huh.ThemeCatppuccin())

		if err := form.Run(); err != nil {
			return err
		}

		if answers.EnableAuth {
			pwForm := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Panel password").
					EchoMode(huh.EchoModePassword).
					Value(&answers.Password).
					Validate(func(s string) error {
						if len(s) < 8 {
							return fmt.Errorf("use at least 8 characters")
						}
						return nil
					}),
			)).WithTheme(huh.ThemeCatppuccin())
			if err := pwForm.Run(); err != nil {
				return err
			}
		}

		poll, _ := strconv.Atoi(answers.PollStr)
		cfg := &config.Config{
			Proxmox: config.ProxmoxConfig{
				BaseURL:             answers.BaseURL,
				User:                answers.User,
				TokenID:             answers.TokenID,
				TokenSecret:         answers.TokenSecret,
				TLSSkipVerify:       answers.TLSSkipVerify,
				PollIntervalSeconds: poll,
			},
			Docker: config.DockerConfig{
				SocketPath:          answers.SocketPath,
				PollIntervalSeconds: poll,
			},
		}

		if answers.EnableAuth {
			hash, err := bcrypt.GenerateFromPassword([]byte(answers.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			cfg.Auth = config.AuthConfig{
				Mode:         config.AuthModePassword,
				PasswordHash: string(hash),
			}
		}

		store := config.NewStoreWith(setupConfigPath, nil)
		if err := store.Replace(cfg); err != nil {
			return err
		}

		fmt.Println(ui.Green.Render("✓") + " Configuration written to " + ui.White.Render(setupConfigPath))
		fmt.Println(ui.Dim.Render("  Start the panel with: labpanel serve"))
		return nil
	},
}

func nonEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
