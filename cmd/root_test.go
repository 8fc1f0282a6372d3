//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"extract", "validate", "run", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "postalcrawl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunnerCommands_Flags(t *testing.T) {
	for _, cmd := range []string{"extract", "run"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flag := range []string{"out", "remote", "force", "jobs", "paths", "first"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s should have --%s", cmd, flag)
		}
	}
	assert.NotNil(t, runCmd.Flags().Lookup("drop-unmatched"))
}

func TestValidateCommand_Flags(t *testing.T) {
	flag := validateCmd.Flags().Lookup("retry-dlq")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)

	limit := validateCmd.Flags().Lookup("dlq-limit")
	require.NotNil(t, limit)
	assert.Equal(t, "1000", limit.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["stats"])
}
