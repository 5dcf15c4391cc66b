package repostate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/execshell"
	"github.com/temirov/esrctl/internal/gitrepo"
)

const (
	// DefaultMetaLayerPath is the meta-layer location relative to the device repository root.
	DefaultMetaLayerPath = "layers/meta-balena"
	// DefaultRemoteName is the remote used for tracking branches and pushes.
	DefaultRemoteName = "origin"

	gitCloneSubcommandConstant        = "clone"
	gitCheckoutSubcommandConstant     = "checkout"
	gitDetachFlagConstant             = "--detach"
	gitSubmoduleSubcommandConstant    = "submodule"
	gitUpdateSubcommandConstant       = "update"
	gitInitFlagConstant               = "--init"
	gitRecursiveFlagConstant          = "--recursive"
	gitTagReferencePrefixConstant     = "refs/tags/"
	gitTerminalPromptEnvironmentName  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisableValue     = "0"
	gitAuthenticationExitCodeConstant = 128
	directoryPermissionsConstant      = 0o755
	cloneOperationConstant            = "clone"
	remoteFieldNameConstant           = "remote"
	pathFieldNameConstant             = "path"
	logFieldRepositoryConstant        = "repository"
	logFieldPathConstant              = "path"
	logFieldTagConstant               = "tag"
	logFieldBranchConstant            = "branch"
	logFieldScopeConstant             = "scope"
	cloningMessageConstant            = "Cloning repository"
	checkedOutTagMessageConstant      = "Checked out release tag"
	createDirectoryErrorTemplate      = "create parent directory %s: %w"
	cloneErrorTemplate                = "clone %s: %w"
	checkoutTagErrorTemplate          = "check out %s: %w"
	submoduleUpdateErrorTemplate      = "update submodules of %s: %w"
	branchLookupErrorTemplate         = "look up branch %s: %w"
	requiredValueMessageConstant      = "value required"
)

var (
	// ErrGitExecutorNotConfigured indicates the repository lacks a git executor.
	ErrGitExecutorNotConfigured = errors.New("repository git executor not configured")
	// ErrTagResolverNotConfigured indicates the repository lacks a tag resolver.
	ErrTagResolverNotConfigured = errors.New("repository tag resolver not configured")
	// ErrReferenceListerNotConfigured indicates the repository lacks a remote lister.
	ErrReferenceListerNotConfigured = errors.New("repository reference lister not configured")
	// ErrFilesystemNotConfigured indicates the repository lacks a filesystem.
	ErrFilesystemNotConfigured = errors.New("repository filesystem not configured")
)

// RepositoryScope selects which checkout an operation runs in.
type RepositoryScope int

const (
	// DeviceScope is the device repository root.
	DeviceScope RepositoryScope = iota
	// MetaLayerScope is the nested meta-layer sub-repository.
	MetaLayerScope
)

// String names the scope for logs.
func (scope RepositoryScope) String() string {
	switch scope {
	case MetaLayerScope:
		return "meta-layer"
	default:
		return "device"
	}
}

// TagResolver finds the highest release tag for a version prefix.
type TagResolver interface {
	HighestTag(executionContext context.Context, remote string, versionPrefix string) (string, error)
}

// Handle identifies one device repository and its release targets.
type Handle struct {
	Remote     string
	Path       string
	OSVersion  esr.OSVersion
	ESRVersion esr.ESRVersion
	Token      string
}

// Options tunes repository behavior.
type Options struct {
	MetaLayerPath    string
	RemoteName       string
	SubmoduleTargets []string
	DryRun           bool
}

// Dependencies lists the collaborators of a Repository.
type Dependencies struct {
	Logger          *zap.Logger
	GitExecutor     gitrepo.GitCommandExecutor
	TagResolver     TagResolver
	ReferenceLister gitrepo.RemoteReferenceLister
	Filesystem      afero.Fs
}

// Repository performs git operations against one working copy. Every
// operation runs with an explicit working directory.
type Repository struct {
	handle          Handle
	options         Options
	logger          *zap.Logger
	gitExecutor     gitrepo.GitCommandExecutor
	tagResolver     TagResolver
	referenceLister gitrepo.RemoteReferenceLister
	filesystem      afero.Fs
}

// New validates the handle and dependencies and constructs a Repository.
func New(handle Handle, options Options, dependencies Dependencies) (*Repository, error) {
	if len(strings.TrimSpace(handle.Remote)) == 0 {
		return nil, esr.ValidationError{Field: remoteFieldNameConstant, Value: handle.Remote, Pattern: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(handle.Path)) == 0 {
		return nil, esr.ValidationError{Field: pathFieldNameConstant, Value: handle.Path, Pattern: requiredValueMessageConstant}
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.TagResolver == nil {
		return nil, ErrTagResolverNotConfigured
	}
	if dependencies.ReferenceLister == nil {
		return nil, ErrReferenceListerNotConfigured
	}
	if dependencies.Filesystem == nil {
		return nil, ErrFilesystemNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(strings.TrimSpace(options.MetaLayerPath)) == 0 {
		options.MetaLayerPath = DefaultMetaLayerPath
	}
	if len(strings.TrimSpace(options.RemoteName)) == 0 {
		options.RemoteName = DefaultRemoteName
	}

	return &Repository{
		handle:          handle,
		options:         options,
		logger:          logger.With(zap.String(logFieldRepositoryConstant, gitrepo.RepositoryName(handle.Remote))),
		gitExecutor:     dependencies.GitExecutor,
		tagResolver:     dependencies.TagResolver,
		referenceLister: dependencies.ReferenceLister,
		filesystem:      dependencies.Filesystem,
	}, nil
}

// Handle returns the repository handle.
func (repository *Repository) Handle() Handle {
	return repository.handle
}

// Directory returns the working directory of scope.
func (repository *Repository) Directory(scope RepositoryScope) string {
	if scope == MetaLayerScope {
		return filepath.Join(repository.handle.Path, repository.options.MetaLayerPath)
	}
	return repository.handle.Path
}

// Clone clones the remote, checks out the highest tag of the OS version
// detached, injects the token into configured submodule URLs and initializes
// submodules. It returns the checked-out tag.
func (repository *Repository) Clone(executionContext context.Context) (string, error) {
	parentDirectory := filepath.Dir(filepath.Clean(repository.handle.Path))
	if mkdirError := repository.filesystem.MkdirAll(parentDirectory, directoryPermissionsConstant); mkdirError != nil {
		return "", fmt.Errorf(createDirectoryErrorTemplate, parentDirectory, mkdirError)
	}

	repository.logger.Info(cloningMessageConstant, zap.String(logFieldPathConstant, repository.handle.Path))
	_, cloneError := repository.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitCloneSubcommandConstant, repository.handle.Remote, repository.handle.Path},
		WorkingDirectory:     parentDirectory,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentName: gitTerminalPromptDisableValue},
	})
	if cloneError != nil {
		if isAuthenticationFailure(cloneError) {
			return "", esr.AuthError{Operation: cloneOperationConstant, Cause: cloneError}
		}
		return "", fmt.Errorf(cloneErrorTemplate, repository.handle.Remote, cloneError)
	}

	releaseTag, resolveError := repository.tagResolver.HighestTag(executionContext, repository.handle.Remote, repository.handle.OSVersion.String())
	if resolveError != nil {
		return "", resolveError
	}

	_, checkoutError := repository.git(executionContext, DeviceScope, gitCheckoutSubcommandConstant, gitDetachFlagConstant, gitTagReferencePrefixConstant+releaseTag)
	if checkoutError != nil {
		return "", fmt.Errorf(checkoutTagErrorTemplate, releaseTag, checkoutError)
	}
	repository.logger.Info(checkedOutTagMessageConstant, zap.String(logFieldTagConstant, releaseTag))

	if len(repository.handle.Token) > 0 {
		for _, target := range repository.options.SubmoduleTargets {
			if _, patchError := repository.PatchSubmoduleCredential(executionContext, DeviceScope, target, repository.handle.Token); patchError != nil {
				return "", patchError
			}
		}
	}

	_, submoduleError := repository.git(executionContext, DeviceScope, gitSubmoduleSubcommandConstant, gitUpdateSubcommandConstant, gitInitFlagConstant, gitRecursiveFlagConstant)
	if submoduleError != nil {
		if isAuthenticationFailure(submoduleError) {
			return "", esr.AuthError{Operation: cloneOperationConstant, Cause: submoduleError}
		}
		return "", fmt.Errorf(submoduleUpdateErrorTemplate, repository.handle.Path, submoduleError)
	}

	return releaseTag, nil
}

// BranchExists reports whether branch exists on the remote. It never consults
// the local checkout.
func (repository *Repository) BranchExists(executionContext context.Context, branch string) (bool, error) {
	references, listError := repository.referenceLister.ListReferences(executionContext, repository.handle.Remote, gitrepo.ReferenceQuery{Kind: gitrepo.ReferenceKindHeads, Pattern: branch})
	if listError != nil {
		if esr.IsAuth(listError) {
			return false, listError
		}
		return false, fmt.Errorf(branchLookupErrorTemplate, branch, listError)
	}
	for _, name := range gitrepo.ShortNames(references, gitrepo.ReferenceKindHeads) {
		if name == branch {
			return true, nil
		}
	}
	return false, nil
}

func (repository *Repository) git(executionContext context.Context, scope RepositoryScope, arguments ...string) (execshell.ExecutionResult, error) {
	return repository.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repository.Directory(scope),
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentName: gitTerminalPromptDisableValue},
	})
}

func commandExitCode(executionError error) (int, bool) {
	var commandFailedError execshell.CommandFailedError
	if errors.As(executionError, &commandFailedError) {
		return commandFailedError.Result.ExitCode, true
	}
	return 0, false
}

func isAuthenticationFailure(executionError error) bool {
	var commandFailedError execshell.CommandFailedError
	if !errors.As(executionError, &commandFailedError) {
		return false
	}
	return commandFailedError.Result.ExitCode == gitAuthenticationExitCodeConstant &&
		gitrepo.ContainsAuthenticationMarker(commandFailedError.Result.StandardError)
}
