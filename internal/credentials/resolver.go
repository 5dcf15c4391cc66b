package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Environment variables consulted, in order, when no GitHub token is configured.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

const (
	referenceSeparatorConstant            = ":"
	environmentReferencePrefixConstant    = "env"
	fileReferencePrefixConstant           = "file"
	environmentTokenMissingTemplate       = "environment variable %s is not set"
	fileReadErrorTemplate                 = "read token file %s: %w"
	fileTokenEmptyTemplate                = "token file %s is empty"
	emptyReferenceTargetTemplate          = "token reference %q names no %s"
	environmentReferenceTargetDescription = "variable"
	fileReferenceTargetDescription        = "file"
)

// ErrFilesystemNotConfigured indicates the resolver cannot read token files.
var ErrFilesystemNotConfigured = errors.New("credentials filesystem not configured")

// GitHubTokenEnvironment lists the GitHub token fallback variables.
func GitHubTokenEnvironment() []string {
	return []string{EnvGitHubCLIToken, EnvGitHubToken, EnvGitHubAPIToken}
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// Resolver turns configured token references into token values. A reference
// is "env:NAME", "file:PATH" or the token itself.
type Resolver struct {
	environmentLookup EnvironmentLookup
	filesystem        afero.Fs
}

// NewResolver constructs a Resolver. A nil lookup reads the process environment.
func NewResolver(environmentLookup EnvironmentLookup, filesystem afero.Fs) (*Resolver, error) {
	if filesystem == nil {
		return nil, ErrFilesystemNotConfigured
	}
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &Resolver{environmentLookup: environmentLookup, filesystem: filesystem}, nil
}

// Resolve returns the token for reference. An empty reference falls back to
// the first non-empty variable of fallbackEnvironment; no match yields "".
func (resolver *Resolver) Resolve(reference string, fallbackEnvironment ...string) (string, error) {
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return resolver.firstEnvironmentValue(fallbackEnvironment), nil
	}

	prefix, target, hasPrefix := strings.Cut(trimmedReference, referenceSeparatorConstant)
	if !hasPrefix {
		return trimmedReference, nil
	}
	target = strings.TrimSpace(target)

	switch strings.ToLower(strings.TrimSpace(prefix)) {
	case environmentReferencePrefixConstant:
		if len(target) == 0 {
			return "", fmt.Errorf(emptyReferenceTargetTemplate, reference, environmentReferenceTargetDescription)
		}
		value, found := resolver.lookup(target)
		if !found {
			return "", fmt.Errorf(environmentTokenMissingTemplate, target)
		}
		return value, nil
	case fileReferencePrefixConstant:
		if len(target) == 0 {
			return "", fmt.Errorf(emptyReferenceTargetTemplate, reference, fileReferenceTargetDescription)
		}
		contents, readError := afero.ReadFile(resolver.filesystem, target)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplate, target, readError)
		}
		token := strings.TrimSpace(string(contents))
		if len(token) == 0 {
			return "", fmt.Errorf(fileTokenEmptyTemplate, target)
		}
		return token, nil
	default:
		return trimmedReference, nil
	}
}

func (resolver *Resolver) firstEnvironmentValue(names []string) string {
	for _, name := range names {
		if value, found := resolver.lookup(name); found {
			return value
		}
	}
	return ""
}

func (resolver *Resolver) lookup(name string) (string, bool) {
	value, found := resolver.environmentLookup(name)
	if !found {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, len(value) > 0
}
