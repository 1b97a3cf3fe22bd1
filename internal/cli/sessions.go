package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/internal/tui"
	"github.com/echodoc-ai/echodoc/pkg/doctors"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDoctorsCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List the AI specialists a consultation can start with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agents := doctors.Catalog()
			if !offline {
				var err error
				agents, err = a.client().Doctors(cmd.Context())
				if err != nil {
					return fmt.Errorf("list doctors: %w", err)
				}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), agents)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tui.RenderDoctors(agents))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the built-in catalog instead of the API")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your past consultations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := a.client().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list consultations: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tui.RenderHistory(recs, a.now()))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newNewCmd(a *app) *cobra.Command {
	var (
		notes      string
		specialist string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a consultation with a specialist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := a.client()
			agents, err := client.Doctors(cmd.Context())
			if err != nil {
				return fmt.Errorf("list doctors: %w", err)
			}
			doc, ok := findDoctor(agents, specialist)
			if !ok {
				return fmt.Errorf("unknown specialist %q (see `echodoc doctors`)", specialist)
			}

			rec, err := client.Create(cmd.Context(), notes, doc)
			if err != nil {
				return fmt.Errorf("create consultation: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created consultation %s with %s\nStart it with: echodoc consult %s\n",
				rec.SessionID, rec.SelectedDoctor.Specialist, rec.SessionID)
			return err
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Symptoms or notes for the doctor")
	cmd.Flags().StringVar(&specialist, "doctor", doctors.DefaultSpecialist, "Specialist to consult")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func findDoctor(agents []doctors.Agent, specialist string) (doctors.Agent, bool) {
	want := strings.TrimSpace(specialist)
	for _, a := range agents {
		if strings.EqualFold(a.Specialist, want) {
			return a, true
		}
	}
	return doctors.Agent{}, false
}
