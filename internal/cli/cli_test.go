package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/doctors"
	"github.com/echodoc-ai/echodoc/pkg/report"
	"github.com/echodoc-ai/echodoc/pkg/server/auth"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	apiserver "github.com/echodoc-ai/echodoc/pkg/server/server"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/sessions/memory"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	s := apiserver.New(config.Config{
		AuthMode:             config.AuthModeDisabled,
		DevUserEmail:         "dev@localhost",
		MaxBodyBytes:         1 << 16,
		MaxTranscriptEntries: 100,
		MaxNotesBytes:        1024,
		CORSAllowedOrigins:   map[string]struct{}{},
		ReportModel:          "transcript",
		ReportTimeout:        5 * time.Second,
		HandlerTimeout:       5 * time.Second,
	}, apiserver.Deps{
		Store:     memory.New(),
		Generator: report.TranscriptOnly{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("ECHODOC_TOKEN", "")
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDoctors_OfflineJSON(t *testing.T) {
	stdout, _, err := executeCLI(t, "doctors", "--offline", "--json")
	if err != nil {
		t.Fatalf("doctors: %v", err)
	}
	var got []doctors.Agent
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if len(got) != len(doctors.Catalog()) {
		t.Fatalf("got %d doctors", len(got))
	}
}

func TestDoctors_FromAPI(t *testing.T) {
	ts := newAPI(t)
	stdout, _, err := executeCLI(t, "--api", ts.URL, "doctors")
	if err != nil {
		t.Fatalf("doctors: %v", err)
	}
	if !strings.Contains(stdout, "Dentist") {
		t.Fatalf("stdout=%q", stdout)
	}
}

func TestNewThenHistory(t *testing.T) {
	ts := newAPI(t)

	stdout, _, err := executeCLI(t, "--api", ts.URL, "new", "--doctor", "dentist", "--notes", "tooth pain", "--json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var created sessions.Record
	if err := json.Unmarshal([]byte(stdout), &created); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if created.SelectedDoctor.Specialist != "Dentist" || created.CreatedBy != "dev@localhost" {
		t.Fatalf("created=%+v", created)
	}

	stdout, _, err = executeCLI(t, "--api", ts.URL, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, created.SessionID) || !strings.Contains(stdout, "tooth pain") {
		t.Fatalf("history=%q", stdout)
	}
}

func TestNew_UnknownDoctor(t *testing.T) {
	ts := newAPI(t)
	_, _, err := executeCLI(t, "--api", ts.URL, "new", "--doctor", "Astrologer")
	if err == nil || !strings.Contains(err.Error(), "unknown specialist") {
		t.Fatalf("err=%v", err)
	}
}

func TestToken_IssuesVerifiableToken(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	stdout, _, err := executeCLI(t, "token", "--email", "pat@example.com", "--key", key)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	p, err := auth.NewVerifier([]byte(key), "").Verify(strings.TrimSpace(stdout))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Email != "pat@example.com" {
		t.Fatalf("principal=%+v", p)
	}
}

func TestToken_ShortKeyRejected(t *testing.T) {
	_, _, err := executeCLI(t, "token", "--email", "pat@example.com", "--key", "short")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestConsult_RequiresVoiceSettings(t *testing.T) {
	t.Setenv("ECHODOC_VOICE_BASE_URL", "")
	t.Setenv("ECHODOC_VOICE_ASSISTANT_ID", "")
	_, _, err := executeCLI(t, "consult", "sess-1")
	if err == nil || !strings.Contains(err.Error(), "voice service url") {
		t.Fatalf("err=%v", err)
	}

	_, _, err = executeCLI(t, "consult")
	if err == nil {
		t.Fatal("expected missing argument error")
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("ECHODOC_DATABASE_URL", "")
	_, _, err := executeCLI(t, "migrate", "up")
	if err == nil || !strings.Contains(err.Error(), "database url") {
		t.Fatalf("err=%v", err)
	}
}
