package report_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/execshell"
	"github.com/temirov/esrctl/internal/fleet"
	"github.com/temirov/esrctl/internal/release"
	"github.com/temirov/esrctl/internal/report"
)

const (
	testRaspberryRemoteConstant = "git@github.com:balena-os/balena-raspberrypi.git"
	testIntelRemoteConstant     = "git@github.com:balena-os/balena-intel.git"
	testReleaseTagConstant      = "v2023.01.0"
)

func newTestFleetReport() release.FleetReport {
	startedAt := time.Date(2023, time.February, 3, 10, 0, 0, 0, time.UTC)
	return release.FleetReport{
		RunID:      "run-1",
		ESRVersion: esr.ESRVersion("2023.01"),
		OSVersion:  esr.OSVersion("2.68"),
		Workspace:  "/tmp/esrctl-1",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(90 * time.Second),
		Repositories: []release.RepositoryResult{
			{
				Remote:      testRaspberryRemoteConstant,
				Path:        "/tmp/esrctl-1/balena-raspberrypi",
				Status:      release.StatusDone,
				State:       release.StateDone,
				Transitions: []release.State{release.StateDiscovered, release.StateCloned, release.StateDone},
				BaseTag:     "v2.68.1+rev1",
				ReleaseTag:  testReleaseTagConstant,
				Devices:     []string{"raspberrypi3", "raspberrypi4-64"},
			},
			{
				Remote: testIntelRemoteConstant,
				Path:   "/tmp/esrctl-1/balena-intel",
				Status: release.StatusFailed,
				State:  release.StateCloned,
				Err:    esr.RepositoryError{Remote: testIntelRemoteConstant, State: string(release.StateCloned), Cause: errors.New("push rejected")},
			},
		},
		Classification: fleet.Classification{
			Current:    map[string]string{"raspberrypi4-64": testReleaseTagConstant, "raspberrypi3": testReleaseTagConstant},
			Missing:    []string{"intel-nuc"},
			Deprecated: []string{},
		},
		Deploys: []release.DeployResult{
			{Device: "raspberrypi3", Tag: testReleaseTagConstant},
			{Device: "raspberrypi4-64", Tag: testReleaseTagConstant, Err: errors.New("jenkins unavailable")},
		},
	}
}

func TestNewDocumentConvertsReport(testInstance *testing.T) {
	document := report.NewDocument(newTestFleetReport())

	require.Equal(testInstance, "2023.01", document.ESRVersion)
	require.Len(testInstance, document.Repositories, 2)
	require.Equal(testInstance, "balena-raspberrypi", document.Repositories[0].Name)
	require.Equal(testInstance, []string{"DISCOVERED", "CLONED", "DONE"}, document.Repositories[0].Transitions)
	require.Empty(testInstance, document.Repositories[0].Error)
	require.Contains(testInstance, document.Repositories[1].Error, "push rejected")
	require.Equal(testInstance, []string{"raspberrypi3", "raspberrypi4-64"}, document.CurrentDevices())
	require.Equal(testInstance, map[string]int{"DONE": 1, "ALREADY_RELEASED": 0, "FAILED": 1}, document.StatusCounts())
	require.Equal(testInstance, "jenkins unavailable", document.Deploys[1].Error)
}

func TestParseFormat(testInstance *testing.T) {
	testCases := []struct {
		name           string
		value          string
		path           string
		expectedFormat report.Format
		expectError    bool
	}{
		{name: "explicit", value: "TOML", path: "report.json", expectedFormat: report.FormatTOML},
		{name: "json_extension", path: "/var/lib/esrctl/report.json", expectedFormat: report.FormatJSON},
		{name: "yml_extension", path: "report.yml", expectedFormat: report.FormatYAML},
		{name: "unknown_extension", path: "report.txt", expectError: true},
		{name: "unknown_value", value: "xml", path: "report.json", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			format, parseError := report.ParseFormat(testCase.value, testCase.path)
			if testCase.expectError {
				var formatError report.UnsupportedFormatError
				require.ErrorAs(testInstance, parseError, &formatError)
				return
			}
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedFormat, format)
		})
	}
}

func TestWriteFileEncodesEveryFormat(testInstance *testing.T) {
	testCases := []struct {
		name             string
		format           report.Format
		expectedSnippets []string
	}{
		{name: "json", format: report.FormatJSON, expectedSnippets: []string{`"run_id": "run-1"`, `"status": "FAILED"`, `"missing": [`}},
		{name: "yaml", format: report.FormatYAML, expectedSnippets: []string{"run_id: run-1", "status: DONE", "raspberrypi4-64: v2023.01.0"}},
		{name: "toml", format: report.FormatTOML, expectedSnippets: []string{`run_id = "run-1"`, "[[repositories]]", `status = "FAILED"`}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			filesystem := afero.NewMemMapFs()
			path := "/reports/run-1." + string(testCase.format)
			require.NoError(testInstance, report.WriteFile(filesystem, path, testCase.format, report.NewDocument(newTestFleetReport())))

			contents, readError := afero.ReadFile(filesystem, path)
			require.NoError(testInstance, readError)
			for _, snippet := range testCase.expectedSnippets {
				require.Contains(testInstance, string(contents), snippet)
			}
		})
	}

	require.ErrorIs(testInstance, report.WriteFile(nil, "/report.json", report.FormatJSON, report.Document{}), report.ErrFilesystemNotConfigured)
}

func TestConsoleRendererPrintsTables(testInstance *testing.T) {
	var output bytes.Buffer
	renderer, creationError := report.NewConsoleRenderer(&output, false)
	require.NoError(testInstance, creationError)

	document := report.NewDocument(newTestFleetReport())
	document.DryRun = true
	require.NoError(testInstance, renderer.Render(document))

	rendered := output.String()
	require.Contains(testInstance, rendered, "ESR 2023.01 (OS 2.68), run run-1 [dry run]")
	require.Contains(testInstance, rendered, "REPOSITORY")
	require.Contains(testInstance, rendered, "balena-raspberrypi")
	require.Contains(testInstance, rendered, "raspberrypi3, raspberrypi4-64")
	require.Contains(testInstance, rendered, "Missing devices: intel-nuc")
	require.Contains(testInstance, rendered, "Deprecated devices: -")
	require.Contains(testInstance, rendered, "failed: jenkins unavailable")
	require.NotContains(testInstance, rendered, "\x1b[")

	_, creationError = report.NewConsoleRenderer(nil, false)
	require.ErrorIs(testInstance, creationError, report.ErrWriterNotConfigured)
}

func TestMetricsTextfile(testInstance *testing.T) {
	metrics := report.NewMetrics()
	metrics.ObserveRun(report.NewDocument(newTestFleetReport()))

	pushCommand := execshell.ShellCommand{Name: execshell.CommandGit, Details: execshell.CommandDetails{Arguments: []string{"push", "origin", "2023.01.x"}}}
	metrics.CommandStarted(pushCommand)
	metrics.CommandCompleted(pushCommand, execshell.ExecutionResult{})
	metrics.CommandCompleted(pushCommand, execshell.ExecutionResult{ExitCode: 1})
	metrics.CommandExecutionFailed(execshell.ShellCommand{Name: execshell.CommandGit, Details: execshell.CommandDetails{Arguments: []string{"--version"}}}, errors.New("not found"))

	filesystem := afero.NewMemMapFs()
	path := "/var/lib/node_exporter/esrctl.prom"
	require.NoError(testInstance, metrics.WriteTextfile(filesystem, path))

	contents, readError := afero.ReadFile(filesystem, path)
	require.NoError(testInstance, readError)
	text := string(contents)
	for _, expectedLine := range []string{
		`esrctl_repositories{status="DONE"} 1`,
		`esrctl_repositories{status="FAILED"} 1`,
		`esrctl_devices{classification="current"} 2`,
		`esrctl_devices{classification="missing"} 1`,
		`esrctl_deploys{result="failed"} 1`,
		`esrctl_deploys{result="triggered"} 1`,
		`esrctl_run_duration_seconds 90`,
		`esrctl_commands_total{command="git",result="success",subcommand="push"} 1`,
		`esrctl_commands_total{command="git",result="failure",subcommand="push"} 1`,
		`esrctl_commands_total{command="git",result="error",subcommand=""} 1`,
	} {
		require.Contains(testInstance, text, expectedLine)
	}

	temporaryExists, existsError := afero.Exists(filesystem, path+".tmp")
	require.NoError(testInstance, existsError)
	require.False(testInstance, temporaryExists)
}
