package localcli

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/executor"
)

func TestSpawnEchoesPromptOnStdin(t *testing.T) {
	a := New("cat")

	child, err := a.Spawn(context.Background(), t.TempDir(), "hello from prompt", nil)
	require.NoError(t, err)

	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.Equal(t, "hello from prompt", string(out))

	exitCode, err := child.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, exitCode)
}

func TestSpawnFollowUpPassesResumeFlag(t *testing.T) {
	a := New("echo")

	child, err := a.SpawnFollowUp(context.Background(), t.TempDir(), "", "session-xyz", nil)
	require.NoError(t, err)

	out, err := io.ReadAll(child.Stdout)
	require.NoError(t, err)
	require.Contains(t, string(out), "--resume session-xyz")

	_, err = child.Wait(context.Background())
	require.NoError(t, err)
}

func TestWaitReportsNonZeroExitCode(t *testing.T) {
	a := New("sh", "-c", "exit 7")

	child, err := a.Spawn(context.Background(), t.TempDir(), "", nil)
	require.NoError(t, err)
	_, _ = io.ReadAll(child.Stdout)

	exitCode, err := child.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, exitCode)
}

func TestAvailabilityReflectsPath(t *testing.T) {
	require.Equal(t, executor.Installed, New("sh").Availability(context.Background()))
	require.Equal(t, executor.NotFound, New("definitely-not-a-real-binary-xyz").Availability(context.Background()))
}

func TestSpawnMissingBinaryReturnsSpawnFailed(t *testing.T) {
	a := New("definitely-not-a-real-binary-xyz")
	_, err := a.Spawn(context.Background(), t.TempDir(), "", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, executor.ErrSpawnFailed)
}
