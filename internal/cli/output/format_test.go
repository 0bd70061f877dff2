package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type sample struct {
	Cache string `json:"cache" yaml:"cache"`
	Size  int64  `json:"size" yaml:"size"`
}

func (s sample) Headers() []string { return []string{"Cache", "Size"} }
func (s sample) Rows() [][]string  { return [][]string{{s.Cache, Bytes(s.Size)}} }

func TestPrinterPrint(t *testing.T) {
	data := sample{Cache: "disk", Size: 2048}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatTable, []string{"CACHE", "disk", "2.00KiB"}},
		{FormatJSON, []string{`"cache": "disk"`, `"size": 2048`}},
		{FormatYAML, []string{"cache: disk", "size: 2048"}},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewPrinter(&buf, tt.format, false).Print(data))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrinterTableFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"blocks": 3}))
	assert.Equal(t, "blocks: 3\n", buf.String())
}

func TestPrinterUnknownFormat(t *testing.T) {
	assert.Error(t, NewPrinter(&bytes.Buffer{}, Format("xml"), false).Print(1))
}

func TestPrinterMessages(t *testing.T) {
	var plain bytes.Buffer
	p := NewPrinter(&plain, FormatTable, false)
	p.Success("flushed")
	p.Warning("slow backend")
	p.Error("drain failed")
	assert.Equal(t, "flushed\nslow backend\ndrain failed\n", plain.String())

	var colored bytes.Buffer
	NewPrinter(&colored, FormatTable, true).Error("drain failed")
	assert.Equal(t, "\033[31mdrain failed\033[0m\n", colored.String())
}
