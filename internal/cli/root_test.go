package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "storeclone", cmd.Use)
	assert.Contains(t, cmd.Long, "ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"},
		{"discover"},
		{"scenario"},
		{"ledger"},
		{"ledger", "init"},
		{"ledger", "list"},
		{"ledger", "archive"},
		{"ledger", "reset"},
		{"ledger", "remove"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"product-id", "store", "from", "to", "min-sales", "skip-discovery"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
	maxFlag := runCmd.Flags().Lookup("max-products")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "-1", maxFlag.DefValue)
}

func TestDiscoverCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	discoverCmd, _, err := cmd.Find([]string{"discover"})
	require.NoError(t, err)

	addFlag := discoverCmd.Flags().Lookup("add")
	require.NotNil(t, addFlag)
	assert.Equal(t, "false", addFlag.DefValue)
}

func TestLedgerResetFlags(t *testing.T) {
	cmd := NewRootCommand()
	resetCmd, _, err := cmd.Find([]string{"ledger", "reset"})
	require.NoError(t, err)

	storeFlag := resetCmd.Flags().Lookup("store")
	require.NotNil(t, storeFlag)
	assert.Equal(t, []string{"true"}, storeFlag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	assert.NotNil(t, resetCmd.Flags().Lookup("clear-clone"))
}

func TestScenarioCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scenarioCmd, _, err := cmd.Find([]string{"scenario"})
	require.NoError(t, err)

	for _, name := range []string{"filter", "golden", "update", "snapshot"} {
		assert.NotNil(t, scenarioCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--format", "xml", "ledger", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}
