package pathutils_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	pathutils "github.com/temirov/esrctl/internal/utils/path"
)

func TestHomeExpanderExpand(testInstance *testing.T) {
	homeDirectory := filepath.Join("/home", "release")
	testCases := []struct {
		name          string
		provider      pathutils.HomeDirectoryProvider
		candidatePath string
		expectedPath  string
	}{
		{name: "bare_tilde", candidatePath: "~", expectedPath: homeDirectory},
		{name: "workspace_under_home", candidatePath: "~/esr/workspace", expectedPath: filepath.Join(homeDirectory, "esr", "workspace")},
		{name: "absolute_path", candidatePath: "/srv/esr-workspace", expectedPath: "/srv/esr-workspace"},
		{name: "other_user", candidatePath: "~builder/esr", expectedPath: "~builder/esr"},
		{name: "empty", candidatePath: "", expectedPath: ""},
		{
			name:          "provider_failure",
			provider:      func() (string, error) { return "", errors.New("no home") },
			candidatePath: "~/esr",
			expectedPath:  "~/esr",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			provider := testCase.provider
			if provider == nil {
				provider = func() (string, error) { return homeDirectory, nil }
			}
			expander := pathutils.NewHomeExpanderWithProvider(provider)
			require.Equal(testInstance, testCase.expectedPath, expander.Expand(testCase.candidatePath))
		})
	}
}

func TestHomeExpanderExpandAllDropsBlankEntries(testInstance *testing.T) {
	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) { return "/home/release", nil })
	require.Equal(testInstance, []string{"/home/release/.env", "/etc/esrctl.env"}, expander.ExpandAll([]string{" ~/.env ", "", "/etc/esrctl.env"}))
}
