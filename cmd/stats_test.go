package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/dhcgn/eml-extract/filter"
)

const statsMessage = "From: Alice <alice@example.com>\r\n" +
	"Subject: Weekly report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"numbers attached\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQgdGVzdA==\r\n" +
	"--XYZ--\r\n"

func plainMessage(from, subject string) string {
	return "From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n"
}

func seed(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunStats(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/mail/sub", 0o755); err != nil {
		t.Fatal(err)
	}
	seed(t, fs, map[string]string{
		"/mail/a.eml":     statsMessage,
		"/mail/sub/b.eml": statsMessage,
		"/mail/c.eml":     plainMessage("bob@example.com", "Lunch"),
		"/mail/skip.txt":  plainMessage("nobody@example.com", "ignored"),
	})

	var out bytes.Buffer
	result, err := RunStats(fs, &out, StatsOptions{Source: "/mail", ReportDir: "/reports", TopN: 5, Extensions: []string{".eml"}})
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}

	if result.Messages != 3 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if got := result.Counter[CategoryFrom]["Alice <alice@example.com>"]; got != 2 {
		t.Errorf("From count = %d, want 2", got)
	}
	if got := result.Counter[CategorySubject]["Lunch"]; got != 1 {
		t.Errorf("Subject count = %d, want 1", got)
	}
	if got := result.Counter[CategoryAttachmentType]["application/pdf"]; got != 2 {
		t.Errorf("attachment types = %v", result.Counter[CategoryAttachmentType])
	}
	if got := result.Counter[CategoryCharset]["ASCII"]; got != 3 {
		t.Errorf("charsets = %v", result.Counter[CategoryCharset])
	}

	if !strings.Contains(out.String(), "1. Alice <alice@example.com> (2)") {
		t.Errorf("output = %s", out.String())
	}

	csvData, err := afero.ReadFile(fs, "/reports/report_from.csv")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	want := "Value,Count\nAlice <alice@example.com>,2\nbob@example.com,1\n"
	if string(csvData) != want {
		t.Errorf("report_from.csv = %q, want %q", csvData, want)
	}
	for _, name := range []string{"report_subject.csv", "report_charset.csv", "report_attachment_type.csv"} {
		if exists, _ := afero.Exists(fs, "/reports/"+name); !exists {
			t.Errorf("missing report %s", name)
		}
	}
}

func TestRunStatsAppliesFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/mail", 0o755); err != nil {
		t.Fatal(err)
	}
	seed(t, fs, map[string]string{
		"/mail/a.eml": plainMessage("alice@example.com", "Invoice 7"),
		"/mail/b.eml": plainMessage("bob@example.com", "Lunch"),
	})

	var out bytes.Buffer
	result, err := RunStats(fs, &out, StatsOptions{
		Source:    "/mail",
		ReportDir: "/reports",
		TopN:      3,
		Filter:    filter.Options{IncludeHeader: []string{"Subject: Invoice"}},
	})
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}

	if result.Messages != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(out.String(), "✓ Subject: Invoice: 1 hits") {
		t.Errorf("output = %s", out.String())
	}
}

func TestRunStatsMbox(t *testing.T) {
	archive := "From a@example.com Mon Jan  1 00:00:00 2024\n" +
		plainMessage("alice@example.com", "one") +
		"\n" +
		"From b@example.com Mon Jan  1 00:00:01 2024\n" +
		plainMessage("alice@example.com", "two")

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/mail", 0o755); err != nil {
		t.Fatal(err)
	}
	seed(t, fs, map[string]string{"/mail/archive.mbox": archive})

	result, err := RunStats(fs, &bytes.Buffer{}, StatsOptions{Source: "/mail", ReportDir: "/reports", TopN: 3, IncludeMbox: true})
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	if got := result.Counter[CategoryFrom]["alice@example.com"]; got != 2 {
		t.Errorf("From count = %d, want 2", got)
	}
}

func TestRunStatsRejectsMixedFilters(t *testing.T) {
	_, err := RunStats(afero.NewMemMapFs(), &bytes.Buffer{}, StatsOptions{
		Source: "/mail",
		Filter: filter.Options{IncludeBody: []string{"a"}, ExcludeBody: []string{"b"}},
	})
	if err == nil {
		t.Error("RunStats() expected error for mixed filter modes")
	}
}

func TestNewStatsCommandFlags(t *testing.T) {
	cmd := NewStatsCommand()
	for _, name := range []string{"output", "top", "ext", "mbox", "include-header", "include-body", "exclude-header", "exclude-body"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("stats must require a directory argument")
	}
}

type unreadableFs struct {
	afero.Fs
	path string
}

func (f *unreadableFs) Open(name string) (afero.File, error) {
	if filepath.Clean(name) == f.path {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

func TestRunStatsLogsUnreadableFiles(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll("/mail", 0o755); err != nil {
		t.Fatal(err)
	}
	seed(t, mem, map[string]string{
		"/mail/bad.eml":  plainMessage("x@example.com", "locked"),
		"/mail/good.eml": plainMessage("y@example.com", "fine"),
	})
	fs := &unreadableFs{Fs: mem, path: "/mail/bad.eml"}

	var logs bytes.Buffer
	result, err := RunStats(fs, &bytes.Buffer{}, StatsOptions{
		Source:    "/mail",
		ReportDir: "/reports",
		TopN:      3,
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}

	if result.Messages != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "path=/mail/bad.eml") {
		t.Errorf("logs = %q, want a warning naming the file", logs.String())
	}
}
