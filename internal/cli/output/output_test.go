package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type room struct {
	Name     string    `json:"room_name"`
	Node     string    `json:"node_id"`
	Max      int       `json:"max"`
	Locked   bool      `json:"has_password"`
	URL      string    `json:"url" table:"wide"`
	Created  time.Time `json:"created_at" table:"wide"`
	internal string
	Hidden   string `json:"-"`
	Skip     string `table:"-"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestTable_SliceOfStructs(t *testing.T) {
	rooms := []room{
		{Name: "arena", Node: "node-a", Max: 8, Locked: true, URL: "wss://a", internal: "x", Hidden: "h", Skip: "s"},
		{Name: "lobby", Node: "node-b"},
	}

	var buf bytes.Buffer
	if err := NewPrinter(&buf, FormatTable, false).Print(rooms); err != nil {
		t.Fatalf("Print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ROOM_NAME NODE_ID MAX HAS_PASSWORD" {
		t.Errorf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "arena node-a 8 yes" {
		t.Errorf("row = %q", lines[1])
	}
	if strings.Contains(buf.String(), "wss://a") {
		t.Error("wide column shown without --wide")
	}

	buf.Reset()
	_ = NewPrinter(&buf, FormatTable, true).Print(rooms)
	if !strings.Contains(buf.String(), "URL") || !strings.Contains(buf.String(), "wss://a") {
		t.Errorf("wide output = %s", buf.String())
	}
}

func TestTable_SingleStruct(t *testing.T) {
	var buf bytes.Buffer
	_ = NewPrinter(&buf, FormatTable, false).Print(&room{Name: "arena", Max: 4})
	out := buf.String()
	for _, want := range []string{"FIELD", "room_name", "arena", "node_id", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

type custom struct{}

func (custom) Table(wide bool) *Table {
	t := &Table{Headers: []string{"X"}}
	if wide {
		t.AddRow("wide")
	} else {
		t.AddRow("narrow")
	}
	return t
}

func TestTable_Tabular(t *testing.T) {
	var buf bytes.Buffer
	_ = NewPrinter(&buf, FormatTable, true).Print(custom{})
	if !strings.Contains(buf.String(), "wide") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	f := &TableFormatter{NoHeaders: true}
	_ = f.Format(&buf, &Table{Headers: []string{"H"}, Rows: [][]string{{"v"}}})
	if strings.TrimSpace(buf.String()) != "v" {
		t.Errorf("no-headers output = %q", buf.String())
	}
}

func TestTable_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	_ = NewPrinter(&buf, FormatTable, false).Print(42)
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONAndYAML(t *testing.T) {
	data := []room{{Name: "arena", Node: "node-a", Max: 2}}

	var buf bytes.Buffer
	_ = NewPrinter(&buf, FormatJSON, false).Print(data)
	if !strings.Contains(buf.String(), `"room_name": "arena"`) {
		t.Errorf("json = %s", buf.String())
	}

	buf.Reset()
	if err := NewPrinter(&buf, FormatYAML, false).Print(data); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "- ") || !strings.Contains(out, "  room_name: arena") || !strings.Contains(out, "  node_id: node-a") {
		t.Errorf("yaml = %s", out)
	}
	if strings.Contains(out, "Hidden") {
		t.Error("json:\"-\" field leaked into yaml")
	}
}

func TestFormatValue_Durations(t *testing.T) {
	var buf bytes.Buffer
	_ = NewPrinter(&buf, FormatTable, false).Print(map[string]time.Duration{"ttl": 90 * time.Second})
	if !strings.Contains(buf.String(), "1m30s") {
		t.Errorf("output = %q", buf.String())
	}
}
