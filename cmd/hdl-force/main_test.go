package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"-v", "--json", "-c", "cfg.json", "--timing", "rtl"})
	require.NoError(t, err)
	assert.Equal(t, options{
		verbose:    true,
		jsonOutput: true,
		timing:     true,
		configPath: "cfg.json",
		path:       "rtl",
	}, opts)

	opts, err = parseArgs([]string{"--clear-cache", "--progress", "design.json"})
	require.NoError(t, err)
	assert.True(t, opts.clearCache)
	assert.True(t, opts.progress)
	assert.Equal(t, "design.json", opts.path)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no path", []string{"-v"}, "no path given"},
		{"two paths", []string{"a", "b"}, "more than one path"},
		{"unknown flag", []string{"--nope", "a"}, "unknown option --nope"},
		{"config without file", []string{"a", "-c"}, "-c needs a file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
