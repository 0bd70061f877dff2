package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "4096", 4096, false},
		{"bytes suffix", "512B", 512, false},
		{"kibibytes", "4Ki", 4 * KiB, false},
		{"kibibytes long", "4KiB", 4 * KiB, false},
		{"mebibytes", "256Mi", 256 * MiB, false},
		{"gibibytes", "2Gi", 2 * GiB, false},
		{"tebibytes", "1TiB", TiB, false},
		{"kilobytes", "10K", 10 * KB, false},
		{"megabytes", "100MB", 100 * MB, false},
		{"case insensitive", "1gI", GiB, false},
		{"whitespace", "  64 Mi ", 64 * MiB, false},
		{"fraction", "1.5Mi", ByteSize(1.5 * float64(MiB)), false},

		{"empty", "", 0, true},
		{"blank", "   ", 0, true},
		{"negative", "-1Mi", 0, true},
		{"unknown unit", "10Xi", 0, true},
		{"garbage", "lots", 0, true},
		{"overflow", "9000000Ti", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEmptyIsSentinel(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("9000000Ti")
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMarshalText(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0"},
		{1000, "1000"},
		{KiB, "1Ki"},
		{256 * MiB, "256Mi"},
		{3 * GiB, "3Gi"},
		{MiB + 1, "1048577"},
		{1536 * KiB, "1536Ki"},
	}
	for _, tt := range tests {
		got, err := tt.in.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))

		var back ByteSize
		require.NoError(t, back.UnmarshalText(got))
		assert.Equal(t, tt.in, back)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.50MiB", (MiB + 512*KiB).String())
	assert.Equal(t, "2.00GiB", (2 * GiB).String())
}

func TestMustParsePanics(t *testing.T) {
	assert.Equal(t, 8*MiB, MustParse("8Mi"))
	assert.Panics(t, func() { MustParse("nope") })
}
