package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	table := NewTableData("Cache", "Backend")
	table.AddRow("hot", "memory")
	table.AddRow("cold", "s3")

	require.Len(t, table.Rows(), 2)

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))

	out := buf.String()
	for _, want := range []string{"CACHE", "BACKEND", "hot", "memory", "cold", "s3"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintKeyValues(t *testing.T) {
	kv := KeyValues{}.Add("Buffered", "10B").Add("Flush queued", "yes")

	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, kv))

	out := buf.String()
	assert.Contains(t, out, "Buffered")
	assert.Contains(t, out, "Flush queued")
	assert.Contains(t, out, ":")
	assert.Contains(t, out, "yes")
}
