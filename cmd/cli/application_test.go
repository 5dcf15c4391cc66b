package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/temirov/esrctl/cmd/cli"
	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/release"
	"github.com/temirov/esrctl/internal/report"
)

const (
	testRaspberryRemoteConstant = "git@github.com:balena-os/balena-raspberrypi.git"
	testIntelRemoteConstant     = "git@github.com:balena-os/balena-intel.git"
	testConfigurationConstant   = "github:\n  organization: balena-os-test\nrelease:\n  concurrency: 2\n  workspace: /srv/esr\ncloud:\n  token: env:TEST_CLOUD_TOKEN\n"
)

type stubRunner struct {
	recordedOptions []release.Options
	repositories    []release.RepositoryResult
	err             error
}

func (runner *stubRunner) Run(_ context.Context, options release.Options) (release.FleetReport, error) {
	runner.recordedOptions = append(runner.recordedOptions, options)
	return release.FleetReport{
		RunID:        options.RunID,
		ESRVersion:   options.ESRVersion,
		OSVersion:    options.OSVersion,
		DryRun:       options.DryRun,
		StartedAt:    time.Date(2023, time.February, 3, 10, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2023, time.February, 3, 10, 1, 30, 0, time.UTC),
		Repositories: runner.repositories,
	}, runner.err
}

type stubDiscoverer struct {
	organizations []string
	remotes       []string
	err           error
}

func (discoverer *stubDiscoverer) DiscoverRepositories(_ context.Context, organization string) ([]string, error) {
	discoverer.organizations = append(discoverer.organizations, organization)
	return discoverer.remotes, discoverer.err
}

type applicationFixture struct {
	application *cli.Application
	filesystem  afero.Fs
	output      *bytes.Buffer
	runner      *stubRunner
	discoverer  *stubDiscoverer
	requests    []cli.ServiceRequest
	metrics     *report.Metrics
}

func newApplicationFixture(testInstance *testing.T, environment map[string]string) *applicationFixture {
	testInstance.Helper()
	testInstance.Chdir(testInstance.TempDir())
	testInstance.Setenv("HOME", testInstance.TempDir())

	fixture := &applicationFixture{
		filesystem: afero.NewMemMapFs(),
		output:     &bytes.Buffer{},
		runner:     &stubRunner{},
		discoverer: &stubDiscoverer{},
		metrics:    report.NewMetrics(),
	}
	serviceFactory := func(request cli.ServiceRequest) (cli.Services, error) {
		fixture.requests = append(fixture.requests, request)
		return cli.Services{Runner: fixture.runner, Discoverer: fixture.discoverer, Metrics: fixture.metrics}, nil
	}
	fixture.application = cli.NewApplication(
		cli.WithFilesystem(fixture.filesystem),
		cli.WithEnvironmentLookup(func(key string) (string, bool) {
			value, found := environment[key]
			return value, found
		}),
		cli.WithServiceFactory(serviceFactory),
		cli.WithOutput(fixture.output),
	)
	return fixture
}

func (fixture *applicationFixture) execute(arguments ...string) error {
	return fixture.application.Execute(append([]string{"--log-level", "error"}, arguments...))
}

func writeConfiguration(testInstance *testing.T, contents string) string {
	testInstance.Helper()
	configurationPath := filepath.Join(testInstance.TempDir(), "esrctl.yaml")
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(contents), 0o600))
	return configurationPath
}

func TestEmbeddedDefaultsReachServices(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	fixture.discoverer.remotes = []string{testRaspberryRemoteConstant}

	require.NoError(testInstance, fixture.execute("discover"))
	require.Len(testInstance, fixture.requests, 1)

	configuration := fixture.requests[0].Configuration
	require.Equal(testInstance, "balena-os", configuration.GitHub.Organization)
	require.Equal(testInstance, 2*time.Minute, configuration.HTTP.Timeout)
	require.Equal(testInstance, cli.RemoteListerShell, configuration.Release.RemoteLister)
	require.Equal(testInstance, 1, configuration.Release.Concurrency)
	require.Len(testInstance, configuration.Release.SubmoduleTargets, 2)
	require.Equal(testInstance, "genericx86-64", configuration.Release.DeviceAliases["intel-nuc"])
	require.Equal(testInstance, "staging", configuration.Jenkins.Environment)
	require.Equal(testInstance, []string{"balena-os"}, fixture.discoverer.organizations)
	require.Contains(testInstance, fixture.output.String(), "balena-raspberrypi")
	require.Contains(testInstance, fixture.output.String(), testRaspberryRemoteConstant)
}

func TestReleaseCommandCombinesConfigurationFlagsAndCredentials(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, map[string]string{
		"GITHUB_TOKEN":     "ghp_env_token",
		"TEST_CLOUD_TOKEN": "cloud-token",
	})
	configurationPath := writeConfiguration(testInstance, testConfigurationConstant)

	executionError := fixture.execute(
		"--config", configurationPath,
		"release", "2023.01", "2.68",
		"--dry-run", "yes",
		"--concurrency", "3",
		"--repositories", testRaspberryRemoteConstant+","+testIntelRemoteConstant,
		"--color", "never",
	)
	require.NoError(testInstance, executionError)

	require.Len(testInstance, fixture.runner.recordedOptions, 1)
	options := fixture.runner.recordedOptions[0]
	require.Equal(testInstance, esr.ESRVersion("2023.01"), options.ESRVersion)
	require.Equal(testInstance, esr.OSVersion("2.68"), options.OSVersion)
	require.Equal(testInstance, "balena-os-test", options.Organization)
	require.Equal(testInstance, []string{testRaspberryRemoteConstant, testIntelRemoteConstant}, options.Repositories)
	require.Equal(testInstance, "/srv/esr", options.Workspace)
	require.Equal(testInstance, 3, options.Concurrency)
	require.True(testInstance, options.DryRun)
	require.Equal(testInstance, "staging", options.DeployEnvironment)
	require.Equal(testInstance, "ghp_env_token", options.Token)
	require.NotEmpty(testInstance, options.RunID)

	require.Len(testInstance, fixture.requests, 1)
	require.True(testInstance, fixture.requests[0].DryRun)
	require.Equal(testInstance, cli.Credentials{GitHubToken: "ghp_env_token", CloudToken: "cloud-token"}, fixture.requests[0].Credentials)
	require.Contains(testInstance, fixture.output.String(), "ESR 2023.01 (OS 2.68), run "+options.RunID+" [dry run]")
}

func TestReleaseCommandAcceptsVersionFlags(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)

	require.NoError(testInstance, fixture.execute("release", "--esr-version", "2023.01", "--os-version", "2.68", "--color", "never"))
	require.Len(testInstance, fixture.runner.recordedOptions, 1)
	require.Equal(testInstance, esr.ESRVersion("2023.01"), fixture.runner.recordedOptions[0].ESRVersion)
	require.False(testInstance, fixture.runner.recordedOptions[0].DryRun)
}

func TestReleaseCommandRejectsInvalidVersions(testInstance *testing.T) {
	testCases := []struct {
		name      string
		arguments []string
	}{
		{name: "short_esr", arguments: []string{"release", "23.1", "2.68"}},
		{name: "patch_os_version", arguments: []string{"release", "2023.01", "2.68.0"}},
		{name: "missing_versions", arguments: []string{"release"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newApplicationFixture(testInstance, nil)
			executionError := fixture.execute(testCase.arguments...)
			require.Error(testInstance, executionError)
			require.True(testInstance, esr.IsValidation(executionError))
			require.Empty(testInstance, fixture.requests)
		})
	}
}

func TestReleaseCommandWritesReportAndMetrics(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	fixture.runner.repositories = []release.RepositoryResult{
		{Remote: testRaspberryRemoteConstant, Status: release.StatusDone, State: release.StateDone, ReleaseTag: "v2023.01.0", Devices: []string{"raspberrypi4-64"}},
		{Remote: testIntelRemoteConstant, Status: release.StatusFailed, State: release.StateFailed, Err: errors.New("clone failed")},
	}

	executionError := fixture.execute(
		"release", "2023.01", "2.68",
		"--report-file", "/reports/esr.yml",
		"--metrics-textfile", "/metrics/esrctl.prom",
		"--color", "never",
	)
	require.NoError(testInstance, executionError)

	reportContents, readError := afero.ReadFile(fixture.filesystem, "/reports/esr.yml")
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(reportContents), "esr_version: \"2023.01\"")
	require.Contains(testInstance, string(reportContents), "error: clone failed")

	metricsContents, metricsError := afero.ReadFile(fixture.filesystem, "/metrics/esrctl.prom")
	require.NoError(testInstance, metricsError)
	require.Contains(testInstance, string(metricsContents), "esrctl_repositories{status=\"FAILED\"} 1")
	require.Contains(testInstance, string(metricsContents), "esrctl_run_duration_seconds 90")

	require.Contains(testInstance, fixture.output.String(), "balena-intel")
	require.Contains(testInstance, fixture.output.String(), "clone failed")
}

func TestReleaseCommandReturnsRunErrorAfterRendering(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	fixture.runner.repositories = []release.RepositoryResult{
		{Remote: testIntelRemoteConstant, Status: release.StatusFailed, State: release.StateFailed, Err: esr.AuthError{Operation: "push", Cause: errors.New("denied")}},
	}
	fixture.runner.err = fixture.runner.repositories[0].Err

	executionError := fixture.execute("release", "2023.01", "2.68", "--fail-on-repository-error", "--color", "never")
	require.Error(testInstance, executionError)
	require.True(testInstance, esr.IsAuth(executionError))
	require.True(testInstance, fixture.runner.recordedOptions[0].FailOnRepositoryError)
	require.Contains(testInstance, fixture.output.String(), "balena-intel")
}

func TestEnvironmentOverridesConfiguration(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	testInstance.Setenv("ESRCTL_GITHUB_ORGANIZATION", "balena-os-env")
	testInstance.Setenv("ESRCTL_HTTP_TIMEOUT", "45s")

	require.NoError(testInstance, fixture.execute("discover"))
	require.Equal(testInstance, []string{"balena-os-env"}, fixture.discoverer.organizations)
	require.Equal(testInstance, 45*time.Second, fixture.requests[0].Configuration.HTTP.Timeout)

	require.NoError(testInstance, fixture.execute("discover", "--organization", "balena-os-flag"))
	require.Equal(testInstance, "balena-os-flag", fixture.discoverer.organizations[1])
}

func TestUnresolvableTokenReferenceFailsConfiguration(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	configurationPath := writeConfiguration(testInstance, "jenkins:\n  token: env:MISSING_JENKINS_TOKEN\n")

	executionError := fixture.execute("--config", configurationPath, "discover")
	require.ErrorContains(testInstance, executionError, "jenkins token")
	require.Empty(testInstance, fixture.requests)
}

func TestDiscoverCommandReportsFailures(testInstance *testing.T) {
	fixture := newApplicationFixture(testInstance, nil)
	fixture.discoverer.err = esr.AuthError{Operation: "list repositories", Cause: errors.New("401")}

	executionError := fixture.execute("discover")
	require.Error(testInstance, executionError)
	require.True(testInstance, esr.IsAuth(executionError))
}
