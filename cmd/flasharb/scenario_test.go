package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/flash-arb/internal/storage"
)

func journaledCommand(t *testing.T, path string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addScenarioFlags(cmd)
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-level", "error", "")
	cmd.Flags().String("journal", path, "")
	return cmd
}

func TestScenarioCleanupClosesJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, _, cleanup, err := newScenario(journaledCommand(t, path), true)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	cleanup()

	j, err := storage.OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.True(t, runs[0].Success)
}
