package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"1024", 1024},
		{"500KB", 500 * KiB},
		{"1MiB", MiB},
		{"5MB", 5 * MiB},
		{"1.5 GB", ByteSize(1.5 * float64(GiB))},
		{"2g", 2 * GiB},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseByteSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "-5MB", "5XB", "MB"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseByteSize(input)
			assert.Error(t, err)
		})
	}
}

func TestByteSizeText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("512MiB")))
	assert.Equal(t, 512*MiB, b)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "512MiB", string(text))
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "1KiB", KiB.String())
	assert.Equal(t, "3MiB", (3 * MiB).String())
	assert.Equal(t, "1500", ByteSize(1500).String())
}
