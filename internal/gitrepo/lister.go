package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/execshell"
)

const (
	gitLSRemoteSubcommandConstant     = "ls-remote"
	gitTagsFlagConstant               = "--tags"
	gitRefsFlagConstant               = "--refs"
	gitHeadsFlagConstant              = "--heads"
	gitTerminalPromptEnvironmentName  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisableValue     = "0"
	peeledSuffixConstant              = "^{}"
	nativeRemoteNameConstant          = "origin"
	sshUserNameConstant               = "git"
	tokenUserNameConstant             = "x-access-token"
	listOperationConstant             = "ls-remote"
	gitAuthenticationExitCodeConstant = 128
	listReferencesErrorTemplate       = "list references on %s: %w"
)

var authenticationFailureMarkers = []string{
	"authentication failed",
	"permission denied",
	"could not read username",
	"invalid username or password",
}

// ErrCommandExecutorNotConfigured indicates the shell lister lacks an executor.
var ErrCommandExecutorNotConfigured = errors.New("git command executor not configured")

// GitCommandExecutor runs git commands.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RemoteReferenceLister lists references of a remote without a local checkout.
type RemoteReferenceLister interface {
	ListReferences(executionContext context.Context, remote string, query ReferenceQuery) ([]*plumbing.Reference, error)
}

// ShellReferenceLister lists references through `git ls-remote`.
type ShellReferenceLister struct {
	executor GitCommandExecutor
}

// NewShellReferenceLister constructs a lister backed by the git CLI.
func NewShellReferenceLister(executor GitCommandExecutor) (*ShellReferenceLister, error) {
	if executor == nil {
		return nil, ErrCommandExecutorNotConfigured
	}
	return &ShellReferenceLister{executor: executor}, nil
}

// ListReferences runs ls-remote restricted to the query namespace and pattern.
func (lister *ShellReferenceLister) ListReferences(executionContext context.Context, remote string, query ReferenceQuery) ([]*plumbing.Reference, error) {
	arguments := []string{gitLSRemoteSubcommandConstant}
	switch query.Kind {
	case ReferenceKindHeads:
		arguments = append(arguments, gitHeadsFlagConstant)
	default:
		arguments = append(arguments, gitTagsFlagConstant, gitRefsFlagConstant)
	}
	arguments = append(arguments, remote)
	if len(strings.TrimSpace(query.Pattern)) > 0 {
		arguments = append(arguments, query.Pattern)
	}

	executionResult, executionError := lister.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentName: gitTerminalPromptDisableValue},
	})
	if executionError != nil {
		return nil, classifyShellListError(remote, executionError)
	}

	references, parseError := ParseLSRemoteOutput(executionResult.StandardOutput)
	if parseError != nil {
		return nil, fmt.Errorf(listReferencesErrorTemplate, remote, parseError)
	}
	return filterReferences(references, query), nil
}

func classifyShellListError(remote string, executionError error) error {
	var commandFailedError execshell.CommandFailedError
	if errors.As(executionError, &commandFailedError) && commandFailedError.Result.ExitCode == gitAuthenticationExitCodeConstant {
		if containsAuthenticationMarker(commandFailedError.Result.StandardError) {
			return esr.AuthError{Operation: listOperationConstant, Cause: executionError}
		}
	}
	return fmt.Errorf(listReferencesErrorTemplate, remote, executionError)
}

// ContainsAuthenticationMarker reports whether git output signals a credential problem.
func ContainsAuthenticationMarker(output string) bool {
	return containsAuthenticationMarker(output)
}

func containsAuthenticationMarker(output string) bool {
	lowered := strings.ToLower(output)
	for _, marker := range authenticationFailureMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// NativeReferenceLister lists references in-process with go-git.
type NativeReferenceLister struct {
	token string
}

// NewNativeReferenceLister constructs a go-git lister. The token, when present,
// authenticates https remotes; ssh remotes use the running ssh-agent.
func NewNativeReferenceLister(token string) *NativeReferenceLister {
	return &NativeReferenceLister{token: strings.TrimSpace(token)}
}

// ListReferences lists the remote advertisement and filters it locally.
func (lister *NativeReferenceLister) ListReferences(executionContext context.Context, remote string, query ReferenceQuery) ([]*plumbing.Reference, error) {
	authMethod, authError := lister.authMethod(remote)
	if authError != nil {
		return nil, esr.AuthError{Operation: listOperationConstant, Cause: authError}
	}

	remoteHandle := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: nativeRemoteNameConstant,
		URLs: []string{remote},
	})

	references, listError := remoteHandle.ListContext(executionContext, &git.ListOptions{
		Auth:          authMethod,
		PeelingOption: git.IgnorePeeled,
	})
	if listError != nil {
		switch {
		case errors.Is(listError, transport.ErrEmptyRemoteRepository):
			return []*plumbing.Reference{}, nil
		case errors.Is(listError, transport.ErrAuthenticationRequired), errors.Is(listError, transport.ErrAuthorizationFailed):
			return nil, esr.AuthError{Operation: listOperationConstant, Cause: listError}
		default:
			return nil, fmt.Errorf(listReferencesErrorTemplate, remote, listError)
		}
	}
	return filterReferences(references, query), nil
}

func (lister *NativeReferenceLister) authMethod(remote string) (transport.AuthMethod, error) {
	switch {
	case IsHTTPRemote(remote):
		if len(lister.token) == 0 {
			return nil, nil
		}
		return &http.BasicAuth{Username: tokenUserNameConstant, Password: lister.token}, nil
	case IsSSHRemote(remote):
		return ssh.NewSSHAgentAuth(sshUserNameConstant)
	default:
		return nil, nil
	}
}

// filterReferences keeps references of the query kind whose short name matches
// the glob, mirroring ls-remote tail matching.
func filterReferences(references []*plumbing.Reference, query ReferenceQuery) []*plumbing.Reference {
	pattern := strings.TrimSpace(query.Pattern)
	filtered := make([]*plumbing.Reference, 0, len(references))
	for _, reference := range references {
		if !matchesKind(reference.Name(), query.Kind) {
			continue
		}
		if strings.HasSuffix(reference.Name().String(), peeledSuffixConstant) {
			continue
		}
		if len(pattern) > 0 {
			matched, matchError := path.Match(pattern, reference.Name().Short())
			if matchError != nil || !matched {
				continue
			}
		}
		filtered = append(filtered, reference)
	}
	return filtered
}
