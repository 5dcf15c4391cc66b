package flags_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/temirov/esrctl/internal/utils/flags"
)

func newToggleCommand(target *bool) *cobra.Command {
	root := &cobra.Command{Use: "esrctl"}
	release := &cobra.Command{Use: "release"}
	root.AddCommand(release)
	flags.AddToggleFlag(release.Flags(), target, "dry-run", "n", false, "Preview the run")
	return release
}

func TestAddToggleFlagParsesValues(testInstance *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		expectedValue   bool
		expectedChanged bool
		expectedRest    []string
	}{
		{name: "default", arguments: []string{}, expectedRest: []string{}},
		{name: "bare_flag", arguments: []string{"--dry-run"}, expectedValue: true, expectedChanged: true, expectedRest: []string{}},
		{name: "explicit_yes", arguments: []string{"--dry-run", "yes"}, expectedValue: true, expectedChanged: true, expectedRest: []string{}},
		{name: "explicit_no_uppercase", arguments: []string{"--dry-run", "NO"}, expectedChanged: true, expectedRest: []string{}},
		{name: "shorthand_off", arguments: []string{"-n", "off", "2023.01"}, expectedChanged: true, expectedRest: []string{"2023.01"}},
		{name: "positional_after_bare_flag", arguments: []string{"--dry-run", "2023.01"}, expectedValue: true, expectedChanged: true, expectedRest: []string{"2023.01"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var dryRun bool
			command := newToggleCommand(&dryRun)

			require.NoError(testInstance, command.ParseFlags(flags.NormalizeToggleArguments(command.Root(), testCase.arguments)))
			require.Equal(testInstance, testCase.expectedValue, dryRun)
			require.Equal(testInstance, testCase.expectedChanged, command.Flags().Changed("dry-run"))
			require.Equal(testInstance, testCase.expectedRest, append([]string{}, command.Flags().Args()...))
		})
	}
}

func TestAddToggleFlagRejectsInvalidValues(testInstance *testing.T) {
	var dryRun bool
	command := newToggleCommand(&dryRun)

	require.Error(testInstance, command.ParseFlags([]string{"--dry-run=maybe"}))
	require.False(testInstance, dryRun)
	require.Contains(testInstance, command.Flags().Lookup("dry-run").Usage, "`<yes|NO>`")
}
