package commands

import (
	"context"
	"log/slog"
	"time"

	"bgmtrack/cmd/bgm-cli/keychain"
	"bgmtrack/lib/scrapers/bangumi/core"
	"bgmtrack/lib/serviceutil"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verifies your bangumi credentials and stores them in the system keyring.",
	Run: func(cmd *cobra.Command, args []string) {
		var email string
		err := survey.AskOne(&survey.Input{Message: "Email:"}, &email, survey.WithValidator(survey.Required))
		if err != nil {
			serviceutil.Fatal("failed to read email", err)
		}
		var password string
		err = survey.AskOne(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required))
		if err != nil {
			serviceutil.Fatal("failed to read password", err)
		}

		cfg := readConfig()
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*30)
		defer cancel()

		coreClient, err := core.NewClient(ctx, core.ClientOptions{
			BaseUrl: cfg.BaseUrl,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize bangumi client", err)
		}
		err = coreClient.Login(ctx, email, password)
		if err != nil {
			serviceutil.Fatal("failed to login to bangumi", err)
		}
		defer func() {
			err := coreClient.Logout(ctx)
			if err != nil {
				slog.WarnContext(ctx, "failed to end the bangumi session", "err", err)
			}
		}()

		err = keychain.SetCredentials(email, password)
		if err != nil {
			serviceutil.Fatal("failed to store credentials in the system keyring", err)
		}
		slog.Info("logged in", "user", coreClient.UserId())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Removes your stored bangumi credentials from the system keyring.",
	Run: func(cmd *cobra.Command, args []string) {
		err := keychain.DeleteCredentials()
		if err != nil {
			serviceutil.Fatal("failed to clear credentials", err)
		}
		slog.Info("credentials cleared")
	},
}
