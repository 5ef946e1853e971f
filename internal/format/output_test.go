package format

import (
	"bytes"
	"strings"
	"testing"
)

type task struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	EstimateMin int      `json:"estimate_min"`
	DueAt       *string  `json:"due_at"`
	Done        bool     `json:"done"`
	Tags        []string `json:"tags"`
}

type doc string

func (d doc) Markdown() string { return string(d) }

func TestWrite_Formats(t *testing.T) {
	v := task{ID: 12, Title: "Draft \"intro\"", EstimateMin: 45, Tags: []string{}}

	tests := []struct {
		name   string
		format string
		pretty bool
		want   string
	}{
		{name: "json", format: "json", want: `{"id":12,"title":"Draft \"intro\"","estimate_min":45,"due_at":null,"done":false,"tags":[]}` + "\n"},
		{name: "default is json", format: "", want: `{"id":12,"title":"Draft \"intro\"","estimate_min":45,"due_at":null,"done":false,"tags":[]}` + "\n"},
		{name: "edn", format: "edn", want: `{:done false :due-at nil :estimate-min 45 :id 12 :tags [] :title "Draft \"intro\""}` + "\n"},
		{name: "edn pretty", format: "EDN", pretty: true, want: "{\n  :done false\n  :due-at nil\n  :estimate-min 45\n  :id 12\n  :tags []\n  :title \"Draft \\\"intro\\\"\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := Write(&buf, v, tt.format, tt.pretty); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Fatalf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrite_EDNKeepsLargeIntegers(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEDN(&buf, map[string]any{"n": int64(9007199254740993), "f": 1.5}, false); err != nil {
		t.Fatalf("WriteEDN: %v", err)
	}
	if got := buf.String(); got != "{:f 1.5 :n 9007199254740993}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWrite_Markdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, doc("# Today"), "md", false); err != nil {
		t.Fatalf("Write md: %v", err)
	}
	if buf.String() != "# Today\n" {
		t.Fatalf("got %q", buf.String())
	}

	err := Write(&buf, task{}, "md", false)
	if err == nil || !strings.Contains(err.Error(), "not available") {
		t.Fatalf("expected md to be refused for plain values, got %v", err)
	}
	if err := Write(&buf, task{}, "yaml", false); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if !Valid("md") || Valid("yaml") {
		t.Fatalf("Valid mismatch")
	}
}
