package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/internal/dotenv"
	"github.com/echodoc-ai/echodoc/internal/serve"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := dotenv.LoadDefaults(); err != nil {
				return err
			}
			deps := serve.DefaultDeps()
			if strings.TrimSpace(addr) != "" {
				deps.LoadConfig = func() (config.Config, error) {
					cfg, err := config.LoadFromEnv()
					cfg.Addr = addr
					return cfg, err
				}
			}
			return serve.Run(cmd.Context(), stderrLogger(cmd), deps)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: ECHODOC_ADDR or :8080)")
	return cmd
}
