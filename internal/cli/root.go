// Package cli implements the echodoc command line: the API server, schema
// migrations and a terminal client for running consultations.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/pkg/sessionclient"
)

const defaultAPIURL = "http://localhost:8080"

type app struct {
	apiURL string
	token  string

	now       func() time.Time
	newClient func(baseURL, token string) *sessionclient.Client
}

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	a := &app{
		now: time.Now,
		newClient: func(baseURL, token string) *sessionclient.Client {
			return sessionclient.New(baseURL, sessionclient.WithBearerToken(token))
		},
	}

	rootCmd := &cobra.Command{
		Use:           "echodoc",
		Short:         "EchoDoc: AI voice consultations from the terminal",
		Long:          "echodoc runs the consultation session API and lets a signed-in user create consultations, talk to an AI specialist and review generated reports.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&a.apiURL, "api", envOrDefault("ECHODOC_API_URL", defaultAPIURL), "Session API base URL")
	rootCmd.PersistentFlags().StringVar(&a.token, "token", os.Getenv("ECHODOC_TOKEN"), "Bearer token for the session API")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newDoctorsCmd(a),
		newHistoryCmd(a),
		newNewCmd(a),
		newConsultCmd(a),
	)
	return rootCmd
}

func (a *app) client() *sessionclient.Client {
	return a.newClient(strings.TrimRight(a.apiURL, "/"), a.token)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func stderrLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
