package repostate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/execshell"
	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/repostate"
)

const (
	testRemoteConstant       = "git@github.com:balena-os/balena-raspberrypi.git"
	testPathConstant         = "/work/balena-raspberrypi"
	testMetaLayerConstant    = "/work/balena-raspberrypi/layers/meta-balena"
	testTokenConstant        = "ghp_token"
	testReleaseTagConstant   = "v2.68.1+rev1"
	testMetaBalenaURL        = "https://github.com/balena-os/meta-balena.git"
	testGitModulesConstant   = "[submodule \"layers/meta-balena\"]\n\tpath = layers/meta-balena\n\turl = https://github.com/balena-os/meta-balena.git\n[submodule \"layers/meta-raspberrypi\"]\n\tpath = layers/meta-raspberrypi\n\turl = https://github.com/agherzan/meta-raspberrypi.git\n"
	testMissingReferenceArgs = "show-ref --verify --quiet "
)

type scriptedGitExecutor struct {
	failures map[string]error
	recorded []execshell.CommandDetails
}

func (executor *scriptedGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recorded = append(executor.recorded, details)
	if failure, found := executor.failures[strings.Join(details.Arguments, " ")]; found {
		return execshell.ExecutionResult{}, failure
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *scriptedGitExecutor) commandLines() []string {
	lines := make([]string, 0, len(executor.recorded))
	for _, details := range executor.recorded {
		lines = append(lines, strings.Join(details.Arguments, " "))
	}
	return lines
}

type stubTagResolver struct {
	tag string
	err error
}

func (resolver stubTagResolver) HighestTag(context.Context, string, string) (string, error) {
	return resolver.tag, resolver.err
}

type stubReferenceLister struct {
	branches []string
	err      error
}

func (lister stubReferenceLister) ListReferences(context.Context, string, gitrepo.ReferenceQuery) ([]*plumbing.Reference, error) {
	references := make([]*plumbing.Reference, 0, len(lister.branches))
	for _, branch := range lister.branches {
		references = append(references, plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), plumbing.ZeroHash))
	}
	return references, lister.err
}

func exitFailure(exitCode int, standardError string) error {
	return execshell.CommandFailedError{Result: execshell.ExecutionResult{ExitCode: exitCode, StandardError: standardError}}
}

func newTestRepository(testInstance *testing.T, executor *scriptedGitExecutor, filesystem afero.Fs, options repostate.Options, resolver stubTagResolver, lister stubReferenceLister) *repostate.Repository {
	testInstance.Helper()
	repository, creationError := repostate.New(
		repostate.Handle{Remote: testRemoteConstant, Path: testPathConstant, OSVersion: "2.68", ESRVersion: "2023.01", Token: testTokenConstant},
		options,
		repostate.Dependencies{Logger: zap.NewNop(), GitExecutor: executor, TagResolver: resolver, ReferenceLister: lister, Filesystem: filesystem},
	)
	require.NoError(testInstance, creationError)
	return repository
}

func TestNewValidatesInputs(testInstance *testing.T) {
	validDependencies := repostate.Dependencies{GitExecutor: &scriptedGitExecutor{}, TagResolver: stubTagResolver{}, ReferenceLister: stubReferenceLister{}, Filesystem: afero.NewMemMapFs()}
	validHandle := repostate.Handle{Remote: testRemoteConstant, Path: testPathConstant}

	testCases := []struct {
		name          string
		handle        repostate.Handle
		mutate        func(*repostate.Dependencies)
		expectedError error
		expectInvalid bool
	}{
		{name: "missing_remote", handle: repostate.Handle{Path: testPathConstant}, expectInvalid: true},
		{name: "missing_path", handle: repostate.Handle{Remote: testRemoteConstant}, expectInvalid: true},
		{name: "missing_executor", handle: validHandle, mutate: func(dependencies *repostate.Dependencies) { dependencies.GitExecutor = nil }, expectedError: repostate.ErrGitExecutorNotConfigured},
		{name: "missing_resolver", handle: validHandle, mutate: func(dependencies *repostate.Dependencies) { dependencies.TagResolver = nil }, expectedError: repostate.ErrTagResolverNotConfigured},
		{name: "missing_lister", handle: validHandle, mutate: func(dependencies *repostate.Dependencies) { dependencies.ReferenceLister = nil }, expectedError: repostate.ErrReferenceListerNotConfigured},
		{name: "missing_filesystem", handle: validHandle, mutate: func(dependencies *repostate.Dependencies) { dependencies.Filesystem = nil }, expectedError: repostate.ErrFilesystemNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			dependencies := validDependencies
			if testCase.mutate != nil {
				testCase.mutate(&dependencies)
			}
			_, creationError := repostate.New(testCase.handle, repostate.Options{}, dependencies)
			require.Error(testInstance, creationError)
			if testCase.expectInvalid {
				require.True(testInstance, esr.IsValidation(creationError))
				return
			}
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
		})
	}

	repository, creationError := repostate.New(validHandle, repostate.Options{}, validDependencies)
	require.NoError(testInstance, creationError)
	require.Equal(testInstance, testMetaLayerConstant, repository.Directory(repostate.MetaLayerScope))
	require.Equal(testInstance, testPathConstant, repository.Directory(repostate.DeviceScope))
}

func TestCloneChecksOutHighestTagAndPatchesSubmodules(testInstance *testing.T) {
	filesystem := afero.NewMemMapFs()
	require.NoError(testInstance, afero.WriteFile(filesystem, testPathConstant+"/.gitmodules", []byte(testGitModulesConstant), 0o644))
	executor := &scriptedGitExecutor{}
	repository := newTestRepository(testInstance, executor, filesystem, repostate.Options{SubmoduleTargets: []string{testMetaBalenaURL}}, stubTagResolver{tag: testReleaseTagConstant}, stubReferenceLister{})

	checkedOutTag, cloneError := repository.Clone(context.Background())
	require.NoError(testInstance, cloneError)
	require.Equal(testInstance, testReleaseTagConstant, checkedOutTag)

	require.Equal(testInstance, []string{
		"clone " + testRemoteConstant + " " + testPathConstant,
		"checkout --detach refs/tags/" + testReleaseTagConstant,
		"update-index --assume-unchanged .gitmodules",
		"submodule update --init --recursive",
	}, executor.commandLines())
	require.Equal(testInstance, "/work", executor.recorded[0].WorkingDirectory)
	require.Equal(testInstance, testPathConstant, executor.recorded[1].WorkingDirectory)
	require.NotContains(testInstance, executor.recorded[0].Arguments[1], testTokenConstant)

	patchedModules, readError := afero.ReadFile(filesystem, testPathConstant+"/.gitmodules")
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(patchedModules), "\turl = https://"+testTokenConstant+"@github.com/balena-os/meta-balena.git\n")
	require.Contains(testInstance, string(patchedModules), "\turl = https://github.com/agherzan/meta-raspberrypi.git\n")
}

func TestCloneFailures(testInstance *testing.T) {
	testCases := []struct {
		name           string
		failures       map[string]error
		resolver       stubTagResolver
		expectAuth     bool
		expectNotFound bool
		expectedCount  int
	}{
		{
			name:           "missing_os_tag",
			resolver:       stubTagResolver{err: esr.NotFoundError{Kind: "tag", Subject: "v2.68*"}},
			expectNotFound: true,
			expectedCount:  1,
		},
		{
			name:          "authentication",
			failures:      map[string]error{"clone " + testRemoteConstant + " " + testPathConstant: exitFailure(128, "fatal: Authentication failed")},
			resolver:      stubTagResolver{tag: testReleaseTagConstant},
			expectAuth:    true,
			expectedCount: 1,
		},
		{
			name:          "submodule_failure",
			failures:      map[string]error{"submodule update --init --recursive": exitFailure(1, "fatal: clone of submodule failed")},
			resolver:      stubTagResolver{tag: testReleaseTagConstant},
			expectedCount: 3,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{failures: testCase.failures}
			repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, testCase.resolver, stubReferenceLister{})

			_, cloneError := repository.Clone(context.Background())
			require.Error(testInstance, cloneError)
			require.Equal(testInstance, testCase.expectAuth, esr.IsAuth(cloneError))
			require.Equal(testInstance, testCase.expectNotFound, esr.IsNotFound(cloneError))
			require.Len(testInstance, executor.recorded, testCase.expectedCount)
		})
	}
}

func TestBranchExistsMatchesExactRemoteBranch(testInstance *testing.T) {
	testCases := []struct {
		name     string
		lister   stubReferenceLister
		expected bool
	}{
		{name: "present", lister: stubReferenceLister{branches: []string{"2023.01.x"}}, expected: true},
		{name: "only_suffix_match", lister: stubReferenceLister{branches: []string{"feature/2023.01.x"}}},
		{name: "absent", lister: stubReferenceLister{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{}
			repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, testCase.lister)
			exists, existsError := repository.BranchExists(context.Background(), "2023.01.x")
			require.NoError(testInstance, existsError)
			require.Equal(testInstance, testCase.expected, exists)
			require.Empty(testInstance, executor.recorded)
		})
	}

	repository := newTestRepository(testInstance, &scriptedGitExecutor{}, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{err: esr.AuthError{Operation: "ls-remote"}})
	_, existsError := repository.BranchExists(context.Background(), "2023.01.x")
	require.True(testInstance, esr.IsAuth(existsError))
}

func TestBranchOrCheckout(testInstance *testing.T) {
	missing := exitFailure(1, "")
	testCases := []struct {
		name            string
		failures        map[string]error
		expectedCommand string
		expectError     bool
	}{
		{
			name:            "existing_local_branch",
			expectedCommand: "checkout 2.68.x",
		},
		{
			name:            "remote_tracking_branch",
			failures:        map[string]error{testMissingReferenceArgs + "refs/heads/2.68.x": missing},
			expectedCommand: "checkout --track origin/2.68.x",
		},
		{
			name: "new_branch",
			failures: map[string]error{
				testMissingReferenceArgs + "refs/heads/2.68.x":          missing,
				testMissingReferenceArgs + "refs/remotes/origin/2.68.x": missing,
			},
			expectedCommand: "checkout -b 2.68.x",
		},
		{
			name:        "lookup_failure",
			failures:    map[string]error{testMissingReferenceArgs + "refs/heads/2.68.x": exitFailure(128, "fatal: not a git repository")},
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{failures: testCase.failures}
			repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

			checkoutError := repository.BranchOrCheckout(context.Background(), repostate.MetaLayerScope, "2.68.x")
			if testCase.expectError {
				require.Error(testInstance, checkoutError)
				return
			}
			require.NoError(testInstance, checkoutError)
			commandLines := executor.commandLines()
			require.Equal(testInstance, testCase.expectedCommand, commandLines[len(commandLines)-1])
			for _, details := range executor.recorded {
				require.Equal(testInstance, testMetaLayerConstant, details.WorkingDirectory)
			}
		})
	}
}

func TestCommitOutcomes(testInstance *testing.T) {
	commitArguments := "commit -m Declare ESR 2023.01 -m Change-type: none"
	testCases := []struct {
		name            string
		failures        map[string]error
		expectedOutcome repostate.CommitOutcome
		expectError     bool
	}{
		{name: "committed", expectedOutcome: repostate.Committed},
		{name: "nothing_to_commit", failures: map[string]error{commitArguments: exitFailure(1, "")}, expectedOutcome: repostate.NothingToCommit},
		{name: "failure", failures: map[string]error{commitArguments: exitFailure(128, "fatal: unable to auto-detect email address")}, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{failures: testCase.failures}
			repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

			outcome, commitError := repository.Commit(context.Background(), repostate.DeviceScope, "Declare ESR 2023.01")
			if testCase.expectError {
				require.Error(testInstance, commitError)
				return
			}
			require.NoError(testInstance, commitError)
			require.Equal(testInstance, testCase.expectedOutcome, outcome)
			require.Equal(testInstance, []string{"add .", commitArguments}, executor.commandLines())
		})
	}
}

func TestPushOutcomes(testInstance *testing.T) {
	pushArguments := "push origin 2023.01.x"
	testCases := []struct {
		name             string
		dryRun           bool
		failures         map[string]error
		expectedOutcome  repostate.PushOutcome
		expectAuth       bool
		expectRejected   bool
		expectedCommands int
	}{
		{name: "pushed", expectedOutcome: repostate.Pushed, expectedCommands: 1},
		{name: "dry_run", dryRun: true, expectedOutcome: repostate.PushSkipped},
		{name: "authentication", failures: map[string]error{pushArguments: exitFailure(128, "fatal: could not read Username")}, expectAuth: true, expectedCommands: 1},
		{name: "rejected", failures: map[string]error{pushArguments: exitFailure(1, "! [rejected] 2023.01.x (non-fast-forward)")}, expectRejected: true, expectedCommands: 1},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{failures: testCase.failures}
			repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{DryRun: testCase.dryRun}, stubTagResolver{}, stubReferenceLister{})

			outcome, pushError := repository.Push(context.Background(), repostate.DeviceScope, "2023.01.x")
			require.Len(testInstance, executor.recorded, testCase.expectedCommands)
			switch {
			case testCase.expectAuth:
				require.True(testInstance, esr.IsAuth(pushError))
			case testCase.expectRejected:
				var rejectedError esr.PushRejectedError
				require.True(testInstance, errors.As(pushError, &rejectedError))
				require.Equal(testInstance, "2023.01.x", rejectedError.Reference)
				require.False(testInstance, esr.IsAuth(pushError))
			default:
				require.NoError(testInstance, pushError)
				require.Equal(testInstance, testCase.expectedOutcome, outcome)
			}
		})
	}
}

func TestTagOutcomes(testInstance *testing.T) {
	testInstance.Run("creates_annotated_tag", func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{failures: map[string]error{testMissingReferenceArgs + "refs/tags/v2023.01.0": exitFailure(1, "")}}
		repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

		outcome, tagError := repository.Tag(context.Background(), repostate.DeviceScope, "v2023.01.0", "", "Declare ESR 2023.01")
		require.NoError(testInstance, tagError)
		require.Equal(testInstance, repostate.Tagged, outcome)
		require.Equal(testInstance, []string{"tag", "-a", "v2023.01.0", "-m", "v2023.01.0: Declare ESR 2023.01\nChange-type: none", "HEAD"}, executor.recorded[1].Arguments)
	})

	testInstance.Run("existing_tag_is_already_done", func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{}
		repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

		outcome, tagError := repository.Tag(context.Background(), repostate.DeviceScope, "v2023.01.0", "HEAD", "Declare ESR 2023.01")
		require.True(testInstance, esr.IsAlreadyDone(tagError))
		require.EqualError(testInstance, tagError, "tag v2023.01.0 already exists")
		require.Equal(testInstance, repostate.TagAlreadyExists, outcome)
		require.Len(testInstance, executor.recorded, 1)
	})

	testInstance.Run("empty_version", func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{}
		repository := newTestRepository(testInstance, executor, afero.NewMemMapFs(), repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

		_, tagError := repository.Tag(context.Background(), repostate.DeviceScope, " ", "HEAD", "message")
		require.True(testInstance, esr.IsValidation(tagError))
		require.Empty(testInstance, executor.recorded)
	})
}

func TestPatchSubmoduleCredential(testInstance *testing.T) {
	testCases := []struct {
		name             string
		target           string
		writeModules     bool
		expectedPatched  bool
		expectedCommands int
	}{
		{name: "patches_matching_line", target: testMetaBalenaURL, writeModules: true, expectedPatched: true, expectedCommands: 1},
		{name: "no_matching_line", target: "https://github.com/balena-os/meta-dt-cloudconnector.git", writeModules: true, expectedCommands: 1},
		{name: "target_without_https", target: "git@github.com:balena-os/meta-balena.git", writeModules: true},
		{name: "missing_gitmodules", target: testMetaBalenaURL},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			filesystem := afero.NewMemMapFs()
			if testCase.writeModules {
				require.NoError(testInstance, afero.WriteFile(filesystem, testPathConstant+"/.gitmodules", []byte(testGitModulesConstant), 0o644))
			}
			executor := &scriptedGitExecutor{}
			repository := newTestRepository(testInstance, executor, filesystem, repostate.Options{}, stubTagResolver{}, stubReferenceLister{})

			patched, patchError := repository.PatchSubmoduleCredential(context.Background(), repostate.DeviceScope, testCase.target, testTokenConstant)
			require.NoError(testInstance, patchError)
			require.Equal(testInstance, testCase.expectedPatched, patched)
			require.Len(testInstance, executor.recorded, testCase.expectedCommands)

			if testCase.writeModules && !testCase.expectedPatched {
				contents, readError := afero.ReadFile(filesystem, testPathConstant+"/.gitmodules")
				require.NoError(testInstance, readError)
				require.Equal(testInstance, testGitModulesConstant, string(contents))
			}
		})
	}
}
