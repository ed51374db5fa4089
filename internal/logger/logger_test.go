package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	gormlogger "gorm.io/gorm/logger"
)

func TestResolveLogFilePathDefaultDir(t *testing.T) {
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := resolveLogFilePath(Options{})
	if err != nil {
		t.Fatalf("resolve default log path failed: %v", err)
	}
	realTmpDir, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("resolve tmp dir symlink failed: %v", err)
	}
	realGot, err := filepath.EvalSymlinks(filepath.Dir(got))
	if err != nil {
		t.Fatalf("resolve got dir symlink failed: %v", err)
	}
	if realGot != filepath.Join(realTmpDir, defaultLogDirName) {
		t.Fatalf("unexpected log dir: %s", realGot)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
}

func TestNewReleaseWritesJSONToFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "release.log"})
	log.Info("referral_visit_recorded")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "release.log"))
	if err != nil {
		t.Fatalf("read release log failed: %v", err)
	}
	if !strings.Contains(string(content), `"message":"referral_visit_recorded"`) {
		t.Fatalf("expected json log line, got=%s", string(content))
	}
}

func TestNewDebugDoesNotWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New(" DEBUG ", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Info("debug-log-test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestParseGormLevel(t *testing.T) {
	cases := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		" Error ": gormlogger.Error,
		"info":    gormlogger.Info,
		"warn":    gormlogger.Warn,
		"":        gormlogger.Warn,
		"verbose": gormlogger.Warn,
	}
	for input, want := range cases {
		if got := ParseGormLevel(input); got != want {
			t.Fatalf("level %q: want %v got %v", input, want, got)
		}
	}
}

func TestSQLOperation(t *testing.T) {
	cases := map[string]string{
		`SELECT * FROM "pending_referral_visits"`:      "SELECT",
		"  insert into user_referrals (id) values (1)": "INSERT",
		"WITH stale DELETE FROM pending_referral_visits": "DELETE",
		"":       "UNKNOWN",
		"PRAGMA": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := sqlOperation(sql); got != want {
			t.Fatalf("sql %q: want %s got %s", sql, want, got)
		}
	}
}
