package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daisho-wakazashi/keybook/internal/models"
)

func TestRenderBlocks(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2030, 1, 7, 14, 0, 0, 0, time.UTC)
	blocks := []models.TimeBlock{
		{ID: "a", StartTime: start, EndTime: start.Add(2 * time.Hour)},
		{ID: "b", StartTime: start.Add(3 * time.Hour), EndTime: start.Add(4 * time.Hour), Claim: &models.Claim{ClaimantID: "cal"}},
	}

	var buf bytes.Buffer
	if err := renderBlocks(&buf, "json", blocks, ny); err != nil {
		t.Fatalf("json: %v", err)
	}
	var views []blockView
	if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(views) != 2 || views[0].Start != "2030-01-07T09:00:00-05:00" || views[0].Hours != 2 || views[0].Claimed {
		t.Fatalf("unexpected json views: %+v", views)
	}
	if !views[1].Claimed || views[1].ClaimedBy != "cal" {
		t.Fatalf("expected second block claimed by cal: %+v", views[1])
	}

	buf.Reset()
	if err := renderBlocks(&buf, "yaml", blocks, ny); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	views = nil
	if err := yaml.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if len(views) != 2 || views[1].ID != "b" {
		t.Fatalf("unexpected yaml views: %+v", views)
	}

	if err := renderBlocks(&buf, "xml", blocks, ny); err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestCommandTree(t *testing.T) {
	want := []string{"serve", "migrate", "user", "token", "availability", "claim"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q subcommand, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestLoadConfigWritesLogFile(t *testing.T) {
	t.Setenv("KEYBOOK_ENV", "test")
	t.Setenv("KEYBOOK_DB_BACKEND", "sqlite")
	t.Setenv("KEYBOOK_DB_DSN", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("KEYBOOK_JWT_SIGNING_KEY", "cli-test-secret")

	logPath = filepath.Join(t.TempDir(), "keybook.log")
	t.Cleanup(func() { logPath, logFile = "", nil })

	if err := loadConfig(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger.Info().Str("component", "cli").Msg("hello")
	if err := rootCmd.PersistentPostRunE(rootCmd, nil); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("expected JSON record in log file, got %q", data)
	}
}
