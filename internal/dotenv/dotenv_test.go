package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	content := "" +
		"# comment\n" +
		"ECHODOC_TEST_FROM_FILE=loaded\n" +
		"ECHODOC_TEST_QUOTED=\"hello world\"\n" +
		"export ECHODOC_TEST_EXPORTED=ok\n" +
		"ECHODOC_TEST_COMMENTED=value # trailing\n" +
		"ECHODOC_TEST_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("ECHODOC_TEST_EXISTING", "already_set")
	for _, key := range []string{"ECHODOC_TEST_FROM_FILE", "ECHODOC_TEST_QUOTED", "ECHODOC_TEST_EXPORTED", "ECHODOC_TEST_COMMENTED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if got := os.Getenv("ECHODOC_TEST_FROM_FILE"); got != "loaded" {
		t.Fatalf("FROM_FILE=%q, want %q", got, "loaded")
	}
	if got := os.Getenv("ECHODOC_TEST_QUOTED"); got != "hello world" {
		t.Fatalf("QUOTED=%q, want %q", got, "hello world")
	}
	if got := os.Getenv("ECHODOC_TEST_EXPORTED"); got != "ok" {
		t.Fatalf("EXPORTED=%q, want %q", got, "ok")
	}
	if got := os.Getenv("ECHODOC_TEST_COMMENTED"); got != "value" {
		t.Fatalf("COMMENTED=%q, want %q", got, "value")
	}
	if got := os.Getenv("ECHODOC_TEST_EXISTING"); got != "already_set" {
		t.Fatalf("EXISTING=%q, want existing value preserved", got)
	}
}

func TestLoadFiles_EarlierFileWins(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	base := filepath.Join(dir, ".env")
	if err := os.WriteFile(local, []byte("ECHODOC_TEST_ORDER=local\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(base, []byte("ECHODOC_TEST_ORDER=base\nECHODOC_TEST_BASE_ONLY=yes\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ECHODOC_TEST_ORDER", "")
	t.Setenv("ECHODOC_TEST_BASE_ONLY", "")
	os.Unsetenv("ECHODOC_TEST_ORDER")
	os.Unsetenv("ECHODOC_TEST_BASE_ONLY")

	if err := LoadFiles(local, base); err != nil {
		t.Fatalf("LoadFiles error: %v", err)
	}
	if got := os.Getenv("ECHODOC_TEST_ORDER"); got != "local" {
		t.Fatalf("ORDER=%q, want local", got)
	}
	if got := os.Getenv("ECHODOC_TEST_BASE_ONLY"); got != "yes" {
		t.Fatalf("BASE_ONLY=%q, want yes", got)
	}
}
