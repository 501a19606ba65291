package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/fieldstore/internal/ports/primary"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much longer value", 10, "much long…"},
		{"ääääääääääää", 5, "ääää…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFormatChange(t *testing.T) {
	if got := formatChange(&primary.LogEntry{Action: "create"}); got != "" {
		t.Errorf("formatChange(create) = %q, want empty", got)
	}

	got := formatChange(&primary.LogEntry{
		Action:    "update",
		FieldName: "data_.roof.material",
		NewValue:  `"asphalt"`,
	})
	if got != `data_.roof.material: - -> "asphalt"` {
		t.Errorf("formatChange(update) = %q", got)
	}
}

func TestPrintLogTable(t *testing.T) {
	var out bytes.Buffer
	printLogTable(&out, nil)
	if !strings.Contains(out.String(), "No log entries found.") {
		t.Errorf("expected empty message, got %q", out.String())
	}

	out.Reset()
	printLogTable(&out, []*primary.LogEntry{
		{ID: "LOG-002", Timestamp: "2026-05-04T08:01:00Z", ActorID: "ana", Action: "update", DocType: "project", DocID: "p-1", FieldName: "metadata_.doc_name", OldValue: `"Site A"`, NewValue: `"Site B"`},
		{ID: "LOG-001", Timestamp: "2026-05-04T08:00:00Z", Action: "create", DocType: "project", DocID: "p-1"},
	})
	text := out.String()
	if !strings.Contains(text, "project/p-1") {
		t.Errorf("expected document column, got %q", text)
	}
	if !strings.Contains(text, `metadata_.doc_name: "Site A" -> "Site B"`) {
		t.Errorf("expected change column, got %q", text)
	}
	if strings.Index(text, "create") > strings.Index(text, "update") {
		t.Errorf("expected oldest entry first, got %q", text)
	}
}
