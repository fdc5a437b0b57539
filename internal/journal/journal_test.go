package journal

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnoreCommand(t *testing.T) {
	for _, command := range []string{
		"cortana kb show",
		"/usr/local/bin/cortana doctor",
		"env FOO=bar cortana plan list",
		"sudo -E cortana doctor",
		"go run ./cmd/cortana ask disk space",
	} {
		assert.True(t, shouldIgnoreCommand(command), command)
	}
	assert.False(t, shouldIgnoreCommand("git status"))
	assert.False(t, shouldIgnoreCommand("cortanas-helper --help"))
}

func TestPrimaryCommandSkipsWrappersAndEnv(t *testing.T) {
	got := PrimaryCommand([]string{"FOO=bar", "env", "sudo", "-E", "/usr/bin/apt", "update"})
	assert.Equal(t, "/usr/bin/apt", got)
	assert.Equal(t, "htop", PrimaryCommand(strings.Fields("nice -n 10 htop")))
	assert.Equal(t, "htop", PrimaryCommand(strings.Fields("nice -n10 htop")))
	assert.Equal(t, "cortana", PrimaryCommand(strings.Fields("sudo -u root cortana doctor")))
	assert.Equal(t, "make", PrimaryCommand(strings.Fields("sudo --user deploy -E make")))
	assert.Equal(t, "ls", PrimaryCommand(strings.Fields("env -u HOME -- ls")))
	assert.True(t, shouldIgnoreCommand("sudo -u root cortana kb show"))
}

func TestRecordAndTail(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "state", "journal.jsonl"), true)

	require.NoError(t, j.Record(Event{Command: "ls", Success: true}))
	require.NoError(t, j.Record(Event{Command: "export TOKEN=abc123", Decision: DecisionDeclined}))
	require.NoError(t, j.Record(Event{Command: "cortana kb show"}))
	require.NoError(t, j.Record(Event{Command: "false", ExitCode: 1}))

	events, err := j.Tail(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, DecisionExecuted, events[0].Decision)
	assert.Equal(t, "export TOKEN=<redacted>", events[1].Command)
	assert.NotEmpty(t, events[2].Timestamp)

	last, err := j.Tail(1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "false", last[0].Command)
}

func TestRecordRejectsEmptyCommand(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "journal.jsonl"), false)
	assert.Error(t, j.Record(Event{Command: "   "}))
}

func TestRecordTruncatesLongCommands(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "journal.jsonl"), false)
	require.NoError(t, j.Record(Event{Command: "echo " + strings.Repeat("x", maxCommandLength)}))
	events, err := j.Tail(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Command, maxCommandLength)
}

func TestLatestFailureFiltersBySessionAndDecision(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "journal.jsonl"), false)
	require.NoError(t, j.Record(Event{Command: "false", SessionID: "a", ExitCode: 1}))
	require.NoError(t, j.Record(Event{Command: "rm -rf /", SessionID: "b", Decision: DecisionBlocked}))
	require.NoError(t, j.Record(Event{Command: "gti status", SessionID: "b", ExitCode: 127}))
	require.NoError(t, j.Record(Event{Command: "ls", SessionID: "b", Success: true}))

	latest, err := j.LatestFailure("")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "gti status", latest.Command)

	latest, err = j.LatestFailure("a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "false", latest.Command)

	latest, err = j.LatestFailure("missing")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMissingJournalIsEmpty(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "none.jsonl"), false)
	events, err := j.Tail(5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJournalFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not portable on windows")
	}
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, New(path, false).Record(Event{Command: "ls"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
