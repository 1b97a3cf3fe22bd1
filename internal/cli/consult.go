package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/internal/tui"
	"github.com/echodoc-ai/echodoc/pkg/call"
	"github.com/echodoc-ai/echodoc/pkg/voice"
)

type consultOptions struct {
	voiceURL    string
	voiceKey    string
	assistantID string
	logFile     string
}

func newConsultCmd(a *app) *cobra.Command {
	var opts consultOptions

	cmd := &cobra.Command{
		Use:   "consult <sessionId>",
		Short: "Run a voice consultation for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsult(cmd, a, strings.TrimSpace(args[0]), opts)
		},
	}

	cmd.Flags().StringVar(&opts.voiceURL, "voice-url", envOrDefault("ECHODOC_VOICE_BASE_URL", ""), "Voice service websocket URL")
	cmd.Flags().StringVar(&opts.voiceKey, "voice-key", envOrDefault("ECHODOC_VOICE_API_KEY", ""), "Voice service public key")
	cmd.Flags().StringVar(&opts.assistantID, "assistant", envOrDefault("ECHODOC_VOICE_ASSISTANT_ID", ""), "Voice assistant ID")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Write call logs to this file")
	return cmd
}

func (o consultOptions) validate() error {
	if strings.TrimSpace(o.voiceURL) == "" {
		return fmt.Errorf("voice service url is required (--voice-url or ECHODOC_VOICE_BASE_URL)")
	}
	if strings.TrimSpace(o.assistantID) == "" {
		return fmt.Errorf("assistant id is required (--assistant or ECHODOC_VOICE_ASSISTANT_ID)")
	}
	return nil
}

func runConsult(cmd *cobra.Command, a *app, sessionID string, opts consultOptions) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := opts.validate(); err != nil {
		return err
	}

	logger := discardLogger()
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, nil))
	}

	client := a.client()
	bridge := tui.NewBridge()
	ctl := call.NewController(call.Config{
		SessionID:   sessionID,
		AssistantID: opts.assistantID,
		NewTransport: func() voice.Transport {
			return voice.NewHandle(voice.Config{
				BaseURL: opts.voiceURL,
				APIKey:  opts.voiceKey,
				Logger:  logger,
			})
		},
		Sessions:  client,
		Reports:   client,
		Presenter: bridge,
		Logger:    logger,
	})
	defer ctl.Close()

	p := tea.NewProgram(
		tui.NewConsult(cmd.Context(), ctl),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	bridge.Attach(p)

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("consult: %w", err)
	}
	if m, ok := final.(tui.ConsultModel); ok && m.NavigatedTo() != "" {
		snap := ctl.Snapshot()
		if snap.LastError != "" {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", call.ReportFailedMessage, snap.LastError)
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s Review it with: echodoc history\n", call.ReportReadyMessage)
		return err
	}
	return nil
}
