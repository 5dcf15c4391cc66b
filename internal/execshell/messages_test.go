package execshell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandMessageFormatterDescribesGitOperations(t *testing.T) {
	formatter := CommandMessageFormatter{}
	testCases := []struct {
		name      string
		arguments []string
		expected  string
	}{
		{name: "ls_remote_heads", arguments: []string{"ls-remote", "--heads", "git@github.com:balena-os/balena-raspberrypi.git", "2023.01.x"}, expected: "Checking branch 2023.01.x on git@github.com:balena-os/balena-raspberrypi.git"},
		{name: "ls_remote_tags", arguments: []string{"ls-remote", "--tags", "--refs", "origin", "v2.68*"}, expected: "Listing tags v2.68* on origin"},
		{name: "checkout_detached", arguments: []string{"checkout", "--detach", "v2.68.1"}, expected: "Checking out v2.68.1 detached in /workspace/repo"},
		{name: "checkout_create", arguments: []string{"checkout", "-b", "2023.01.x"}, expected: "Creating branch 2023.01.x in /workspace/repo"},
		{name: "checkout_existing", arguments: []string{"checkout", "2023.01.x"}, expected: "Switching /workspace/repo to branch 2023.01.x"},
		{name: "commit", arguments: []string{"commit", "-m", "Declare ESR 2023.01", "-m", "Change-type: none"}, expected: "Creating commit \"Declare ESR 2023.01\" in /workspace/repo"},
		{name: "tag", arguments: []string{"tag", "-a", "v2023.01.0", "-m", "message", "HEAD"}, expected: "Creating tag v2023.01.0 in /workspace/repo"},
		{name: "push", arguments: []string{"push", "origin", "2023.01.x"}, expected: "Pushing 2023.01.x from /workspace/repo"},
		{name: "update_index", arguments: []string{"update-index", "--assume-unchanged", ".gitmodules"}, expected: "Marking .gitmodules unchanged in /workspace/repo"},
		{name: "submodule", arguments: []string{"submodule", "update", "--init", "--recursive"}, expected: "Initializing submodules in /workspace/repo"},
		{name: "unknown_subcommand", arguments: []string{"gc"}, expected: "Running git gc (in /workspace/repo)"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: testCase.arguments, WorkingDirectory: "/workspace/repo"}}
			require.Equal(t, testCase.expected, formatter.BuildStartedMessage(command))
		})
	}
}

func TestBuildFailureMessageIncludesExitCodeAndStandardError(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"push", "origin", "v2023.01.0"}, WorkingDirectory: "/workspace/repo"}}

	message := formatter.BuildFailureMessage(command, ExecutionResult{ExitCode: 128, StandardError: "fatal: Authentication failed\n"})

	require.Equal(t, "Failed to push v2023.01.0 from /workspace/repo (exit code 128: fatal: Authentication failed)", message)
}

func TestBuildExecutionFailureMessageForScript(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{Name: CommandShell, Details: CommandDetails{Arguments: []string{"./generate.sh"}}}

	message := formatter.BuildExecutionFailureMessage(command, errors.New("executable not found"))

	require.Equal(t, "Script ./generate.sh failed in current directory: executable not found", message)
}

func TestShowRefStartMessagesAreSuppressed(t *testing.T) {
	formatter := CommandMessageFormatter{}
	require.False(t, formatter.shouldLogStartMessage(ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"show-ref", "--verify", "--quiet", "refs/heads/2.68.x"}}}))
	require.True(t, formatter.shouldLogStartMessage(ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"status"}}}))
}
