package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/gitrepo"
)

const (
	tagGlobSuffixConstant          = "*"
	componentBoundaryCharacters    = ".+-"
	tagKindConstant                = "tag"
	tagSubjectTemplateConstant     = "%s on %s"
	listTagsErrorTemplateConstant  = "list tags %s on %s: %w"
	noMatchingTagMessageConstant   = "No release tag matches prefix"
	resolvedTagMessageConstant     = "Resolved highest release tag"
	logFieldRemoteConstant         = "remote"
	logFieldPatternConstant        = "pattern"
	logFieldTagConstant            = "tag"
	logFieldCandidateCountConstant = "candidates"
)

var (
	// ErrReferenceListerNotConfigured indicates the resolver lacks a lister.
	ErrReferenceListerNotConfigured = errors.New("remote reference lister not configured")
	// ErrLoggerNotConfigured indicates the resolver lacks a logger.
	ErrLoggerNotConfigured = errors.New("version resolver logger not configured")
)

// Resolver finds release tags on remotes.
type Resolver struct {
	lister gitrepo.RemoteReferenceLister
	logger *zap.Logger
}

// NewResolver validates dependencies and constructs a Resolver.
func NewResolver(lister gitrepo.RemoteReferenceLister, logger *zap.Logger) (*Resolver, error) {
	if lister == nil {
		return nil, ErrReferenceListerNotConfigured
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Resolver{lister: lister, logger: logger}, nil
}

// HighestTag returns the greatest tag named v<versionPrefix> or continuing it
// past a component boundary. It returns esr.NotFoundError when none match.
func (resolver *Resolver) HighestTag(executionContext context.Context, remote string, versionPrefix string) (string, error) {
	tagPrefix := esr.TagName(strings.TrimSpace(versionPrefix))
	pattern := tagPrefix + tagGlobSuffixConstant

	references, listError := resolver.lister.ListReferences(executionContext, remote, gitrepo.ReferenceQuery{Kind: gitrepo.ReferenceKindTags, Pattern: pattern})
	if listError != nil {
		if esr.IsAuth(listError) {
			return "", listError
		}
		return "", fmt.Errorf(listTagsErrorTemplateConstant, pattern, remote, listError)
	}

	candidates := FilterByPrefix(gitrepo.ShortNames(references, gitrepo.ReferenceKindTags), tagPrefix)
	if len(candidates) == 0 {
		resolver.logger.Warn(noMatchingTagMessageConstant, zap.String(logFieldRemoteConstant, remote), zap.String(logFieldPatternConstant, pattern))
		return "", esr.NotFoundError{Kind: tagKindConstant, Subject: fmt.Sprintf(tagSubjectTemplateConstant, pattern, remote)}
	}

	SortTags(candidates)
	highestTag := candidates[len(candidates)-1]
	resolver.logger.Debug(resolvedTagMessageConstant,
		zap.String(logFieldRemoteConstant, remote),
		zap.String(logFieldTagConstant, highestTag),
		zap.Int(logFieldCandidateCountConstant, len(candidates)),
	)
	return highestTag, nil
}

// FilterByPrefix keeps tags equal to prefix or continuing it with '.', '+' or '-',
// so prefix v2.6 does not match v2.68.0.
func FilterByPrefix(tags []string, prefix string) []string {
	filtered := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		remainder := tag[len(prefix):]
		if len(remainder) == 0 || strings.ContainsRune(componentBoundaryCharacters, rune(remainder[0])) {
			filtered = append(filtered, tag)
		}
	}
	return filtered
}
