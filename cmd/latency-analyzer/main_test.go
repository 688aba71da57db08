package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterspersed(t *testing.T) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	details := fs.Bool("details", false, "")
	eventDB := fs.String("event-db", "", "")

	positional, err := parseInterspersed(fs, []string{"run1.pcapng", "--details", "--event-db", "agent.sqlite"})
	require.NoError(t, err)
	assert.Equal(t, []string{"run1.pcapng"}, positional)
	assert.True(t, *details)
	assert.Equal(t, "agent.sqlite", *eventDB)
}

func TestParseInterspersedUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	_, err := parseInterspersed(fs, []string{"run1.pcapng", "--nope"})
	assert.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(usageError{flag.ErrHelp}))
	assert.Equal(t, 1, exitCode(errors.New("capture not found")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("analyze: %w", usageError{errors.New("bad")})))
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	for name, run := range map[string]func([]string) error{
		"analyze":   runAnalyze,
		"summarize": runSummarize,
		"serve":     runServe,
	} {
		t.Run(name, func(t *testing.T) {
			err := run([]string{"--bogus"})
			require.Error(t, err)
			assert.Equal(t, 2, exitCode(err))
		})
	}
}

func TestAnalyzeWithoutCaptureIsUsageError(t *testing.T) {
	err := runAnalyze([]string{"--quiet"})
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}
