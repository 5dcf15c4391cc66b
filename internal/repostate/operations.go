package repostate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	gitShowRefSubcommandConstant    = "show-ref"
	gitVerifyFlagConstant           = "--verify"
	gitQuietFlagConstant            = "--quiet"
	gitTrackFlagConstant            = "--track"
	gitBranchFlagConstant           = "-b"
	gitAddSubcommandConstant        = "add"
	gitAllPathsConstant             = "."
	gitCommitSubcommandConstant     = "commit"
	gitMessageFlagConstant          = "-m"
	gitPushSubcommandConstant       = "push"
	gitTagSubcommandConstant        = "tag"
	gitAnnotateFlagConstant         = "-a"
	gitHeadsReferencePrefixConstant = "refs/heads/"
	gitRemotesReferenceTemplate     = "refs/remotes/%s/%s"
	defaultTagReferenceConstant     = "HEAD"
	changeTypeTrailerConstant       = "Change-type: none"
	tagMessageTemplateConstant      = "%s: %s\n" + changeTypeTrailerConstant
	remoteBranchTemplateConstant    = "%s/%s"
	referenceMissingExitCode        = 1
	nothingToCommitExitCode         = 1
	pushOperationConstant           = "push"
	tagSubjectPrefixConstant        = "tag "
	logFieldReferenceConstant       = "reference"
	logFieldMessageConstant         = "message"
	trackingCheckoutMessageConstant = "Checking out tracking branch"
	localCheckoutMessageConstant    = "Checking out existing branch"
	createBranchMessageConstant     = "Creating branch"
	committedMessageConstant        = "Committed changes"
	nothingToCommitMessageConstant  = "Nothing to commit, already updated"
	pushSkippedMessageConstant      = "Dry run, skipping push"
	pushedMessageConstant           = "Pushed reference"
	pushRejectedMessageConstant     = "Push rejected"
	taggedMessageConstant           = "Created tag"
	tagExistsMessageConstant        = "Tag already exists"
	checkoutErrorTemplate           = "check out %s in %s: %w"
	stageErrorTemplate              = "stage changes in %s: %w"
	commitErrorTemplate             = "commit in %s: %w"
	tagErrorTemplate                = "tag %s in %s: %w"
	referenceLookupErrorTemplate    = "look up %s in %s: %w"
)

// CommitOutcome describes the result of Commit.
type CommitOutcome int

const (
	// Committed indicates a new commit was created.
	Committed CommitOutcome = iota
	// NothingToCommit indicates the working tree had no changes.
	NothingToCommit
)

// String names the outcome.
func (outcome CommitOutcome) String() string {
	if outcome == NothingToCommit {
		return "nothing_to_commit"
	}
	return "committed"
}

// PushOutcome describes the result of Push.
type PushOutcome int

const (
	// Pushed indicates the reference reached the remote.
	Pushed PushOutcome = iota
	// PushSkipped indicates a dry run suppressed the push.
	PushSkipped
)

// String names the outcome.
func (outcome PushOutcome) String() string {
	if outcome == PushSkipped {
		return "skipped"
	}
	return "pushed"
}

// TagOutcome describes the result of Tag.
type TagOutcome int

const (
	// Tagged indicates a new annotated tag was created.
	Tagged TagOutcome = iota
	// TagAlreadyExists indicates the tag was present before.
	TagAlreadyExists
)

// String names the outcome.
func (outcome TagOutcome) String() string {
	if outcome == TagAlreadyExists {
		return "already_exists"
	}
	return "tagged"
}

// BranchOrCheckout switches scope to branch name. An existing local branch is
// checked out, then a branch tracking the remote, otherwise a new branch is
// created at the current position.
func (repository *Repository) BranchOrCheckout(executionContext context.Context, scope RepositoryScope, name string) error {
	logger := repository.logger.With(zap.String(logFieldScopeConstant, scope.String()), zap.String(logFieldBranchConstant, name))
	directory := repository.Directory(scope)

	localExists, localError := repository.referenceExists(executionContext, scope, gitHeadsReferencePrefixConstant+name)
	if localError != nil {
		return localError
	}
	if localExists {
		logger.Info(localCheckoutMessageConstant)
		if _, checkoutError := repository.git(executionContext, scope, gitCheckoutSubcommandConstant, name); checkoutError != nil {
			return fmt.Errorf(checkoutErrorTemplate, name, directory, checkoutError)
		}
		return nil
	}

	remoteExists, remoteError := repository.referenceExists(executionContext, scope, fmt.Sprintf(gitRemotesReferenceTemplate, repository.options.RemoteName, name))
	if remoteError != nil {
		return remoteError
	}
	if remoteExists {
		logger.Info(trackingCheckoutMessageConstant)
		remoteBranch := fmt.Sprintf(remoteBranchTemplateConstant, repository.options.RemoteName, name)
		if _, checkoutError := repository.git(executionContext, scope, gitCheckoutSubcommandConstant, gitTrackFlagConstant, remoteBranch); checkoutError != nil {
			return fmt.Errorf(checkoutErrorTemplate, name, directory, checkoutError)
		}
		return nil
	}

	logger.Info(createBranchMessageConstant)
	if _, checkoutError := repository.git(executionContext, scope, gitCheckoutSubcommandConstant, gitBranchFlagConstant, name); checkoutError != nil {
		return fmt.Errorf(checkoutErrorTemplate, name, directory, checkoutError)
	}
	return nil
}

// Commit stages every change in scope and commits it with the change-type trailer.
func (repository *Repository) Commit(executionContext context.Context, scope RepositoryScope, message string) (CommitOutcome, error) {
	logger := repository.logger.With(zap.String(logFieldScopeConstant, scope.String()))
	directory := repository.Directory(scope)

	if _, addError := repository.git(executionContext, scope, gitAddSubcommandConstant, gitAllPathsConstant); addError != nil {
		return Committed, fmt.Errorf(stageErrorTemplate, directory, addError)
	}

	_, commitError := repository.git(executionContext, scope, gitCommitSubcommandConstant, gitMessageFlagConstant, message, gitMessageFlagConstant, changeTypeTrailerConstant)
	if commitError != nil {
		if exitCode, failed := commandExitCode(commitError); failed && exitCode == nothingToCommitExitCode {
			logger.Info(nothingToCommitMessageConstant, zap.String(logFieldPathConstant, directory))
			return NothingToCommit, nil
		}
		return Committed, fmt.Errorf(commitErrorTemplate, directory, commitError)
	}

	logger.Info(committedMessageConstant, zap.String(logFieldMessageConstant, message))
	return Committed, nil
}

// Push publishes reference from scope to the remote. Authentication failures
// return esr.AuthError and other failures esr.PushRejectedError.
func (repository *Repository) Push(executionContext context.Context, scope RepositoryScope, reference string) (PushOutcome, error) {
	logger := repository.logger.With(zap.String(logFieldScopeConstant, scope.String()), zap.String(logFieldReferenceConstant, reference))
	if repository.options.DryRun {
		logger.Info(pushSkippedMessageConstant)
		return PushSkipped, nil
	}

	_, pushError := repository.git(executionContext, scope, gitPushSubcommandConstant, repository.options.RemoteName, reference)
	if pushError != nil {
		exitCode, failed := commandExitCode(pushError)
		if (failed && exitCode == gitAuthenticationExitCodeConstant) || isAuthenticationFailure(pushError) {
			return Pushed, esr.AuthError{Operation: pushOperationConstant, Cause: pushError}
		}
		logger.Warn(pushRejectedMessageConstant, zap.Error(pushError))
		return Pushed, esr.PushRejectedError{Reference: reference, Cause: pushError}
	}

	logger.Info(pushedMessageConstant)
	return Pushed, nil
}

// Tag creates an annotated tag version at ref (HEAD when empty). A tag that
// already exists locally is reported as TagAlreadyExists with an
// esr.AlreadyDoneError.
func (repository *Repository) Tag(executionContext context.Context, scope RepositoryScope, version string, ref string, message string) (TagOutcome, error) {
	if validationError := esr.ValidateTagVersion(version); validationError != nil {
		return Tagged, validationError
	}
	trimmedVersion := strings.TrimSpace(version)
	if len(strings.TrimSpace(ref)) == 0 {
		ref = defaultTagReferenceConstant
	}
	logger := repository.logger.With(zap.String(logFieldScopeConstant, scope.String()), zap.String(logFieldTagConstant, trimmedVersion))
	directory := repository.Directory(scope)

	exists, lookupError := repository.referenceExists(executionContext, scope, gitTagReferencePrefixConstant+trimmedVersion)
	if lookupError != nil {
		return Tagged, lookupError
	}
	if exists {
		logger.Warn(tagExistsMessageConstant)
		return TagAlreadyExists, esr.AlreadyDoneError{Subject: tagSubjectPrefixConstant + trimmedVersion}
	}

	annotation := fmt.Sprintf(tagMessageTemplateConstant, trimmedVersion, message)
	if _, tagError := repository.git(executionContext, scope, gitTagSubcommandConstant, gitAnnotateFlagConstant, trimmedVersion, gitMessageFlagConstant, annotation, ref); tagError != nil {
		return Tagged, fmt.Errorf(tagErrorTemplate, trimmedVersion, directory, tagError)
	}

	logger.Info(taggedMessageConstant, zap.String(logFieldReferenceConstant, ref))
	return Tagged, nil
}

// referenceExists runs show-ref --verify, which exits with 1 for unknown references.
func (repository *Repository) referenceExists(executionContext context.Context, scope RepositoryScope, reference string) (bool, error) {
	_, showError := repository.git(executionContext, scope, gitShowRefSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, reference)
	if showError == nil {
		return true, nil
	}
	if exitCode, failed := commandExitCode(showError); failed && exitCode == referenceMissingExitCode {
		return false, nil
	}
	return false, fmt.Errorf(referenceLookupErrorTemplate, reference, repository.Directory(scope), showError)
}
