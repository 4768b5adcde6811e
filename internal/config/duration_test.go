package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1w2d12h", 9*24*time.Hour + 12*time.Hour},
		{"720h", 720 * time.Hour},
		{"1.5d", 36 * time.Hour},
		{"90s", 90 * time.Second},
		{"500ms", 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, input := range []string{"", "d", "w", "abc", "12"} {
		_, err := ParseDuration(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("30d")))
	assert.Equal(t, 30*24*time.Hour, d.Duration())
}

func TestDurationJSONRoundTrip(t *testing.T) {
	tests := []struct {
		json string
		want time.Duration
	}{
		{`"7d"`, 7 * 24 * time.Hour},
		{`"36h"`, 36 * time.Hour},
		{`3600000000000`, time.Hour},
	}

	for _, tt := range tests {
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(tt.json), &d))
		assert.Equal(t, tt.want, d.Duration())
	}

	out, err := json.Marshal(Duration(9 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, `"1w2d"`, string(out))
}

func TestDurationString(t *testing.T) {
	assert.Equal(t, "0s", Duration(0).String())
	assert.Equal(t, "1w", Duration(7*24*time.Hour).String())
	assert.Equal(t, "2d12h0m0s", Duration(60*time.Hour).String())
}
