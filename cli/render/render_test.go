package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"invalid with message", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

type opcodeCount struct {
	Opcode string `json:"opcode" yaml:"opcode"`
	Count  int    `json:"count" yaml:"count"`
}

type captureStats struct {
	Name  string `json:"name" yaml:"name"`
	Total int    `json:"total" yaml:"total"`
}

func TestRenderer_Formats(t *testing.T) {
	stats := captureStats{Name: "Searhus", Total: 42}
	opcodes := []opcodeCount{{"ClientStart", 3}, {"AggregatePacket", 9}}

	tests := []struct {
		name   string
		format Format
		data   any
		want   []string
	}{
		{"json struct", FormatJSON, stats, []string{`"name": "Searhus"`, `"total": 42`}},
		{"yaml struct", FormatYAML, stats, []string{"name: Searhus", "total: 42"}},
		{"table struct", FormatTable, stats, []string{"name:", "Searhus", "total:", "42"}},
		{"table slice", FormatTable, opcodes, []string{"opcode", "count", "ClientStart", "AggregatePacket"}},
		{"table empty slice", FormatTable, []opcodeCount{}, []string{"(no results)"}},
		{"json slice", FormatJSON, opcodes, []string{`"opcode": "AggregatePacket"`, `"count": 9`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewRendererWithWriter(tt.format, true, &buf).Render(tt.data); err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestRenderer_NoColorOnlyAffectsTable(t *testing.T) {
	data := captureStats{Name: "Ceryshen", Total: 7}
	var color, plain bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &color).Render(data); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &plain).Render(data); err != nil {
		t.Fatal(err)
	}
	if color.String() != plain.String() {
		t.Error("--no-color changed JSON output")
	}
}

func TestRenderer_Table_NestedListing(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	type row struct {
		Index  int    `json:"index"`
		Opcode string `json:"opcode"`
	}
	type summary struct {
		Name     string    `json:"name"`
		Started  time.Time `json:"started"`
		Payload  []byte    `json:"payload"`
		Warnings []string  `json:"warnings"`
		Listing  []row     `json:"listing"`
		internal int
	}

	data := &summary{
		Name:     "capture",
		Started:  time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC),
		Payload:  []byte{0x00, 0x19},
		Warnings: []string{"a", "b"},
		Listing:  []row{{0, "ClientStart"}, {1, "AggregatePacket"}},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{
		"started:", "2026-05-01T18:30:00Z",
		"00 19",
		"a; b",
		"listing:", "index", "opcode", "ClientStart", "AggregatePacket",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "internal") {
		t.Errorf("unexported field rendered:\n%s", got)
	}
}

func TestRenderer_Table_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(map[string]any{"b": 2, "a": 1}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if strings.Index(got, "a:") > strings.Index(got, "b:") {
		t.Errorf("map keys not sorted:\n%s", got)
	}
}
