package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	failureSuffixTemplateConstant           = " (exit code %d%s)"
	executionFailureSuffixTemplateConstant  = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
)

const (
	gitLSRemoteSubcommandNameConstant    = "ls-remote"
	gitCloneSubcommandNameConstant       = "clone"
	gitCheckoutSubcommandNameConstant    = "checkout"
	gitShowRefSubcommandNameConstant     = "show-ref"
	gitSubmoduleSubcommandNameConstant   = "submodule"
	gitAddSubcommandNameConstant         = "add"
	gitCommitSubcommandNameConstant      = "commit"
	gitTagSubcommandNameConstant         = "tag"
	gitPushSubcommandNameConstant        = "push"
	gitUpdateIndexSubcommandNameConstant = "update-index"
	gitHeadsFlagConstant                 = "--heads"
	gitTagsFlagConstant                  = "--tags"
	gitDetachFlagConstant                = "--detach"
	gitCreateBranchFlagConstant          = "-b"
	gitTrackFlagConstant                 = "--track"
	gitMessageFlagConstant               = "-m"
	gitAnnotateFlagConstant              = "-a"
	gitDirectoryFlagConstant             = "-C"
)

const (
	gitLSRemoteHeadsStartTemplateConstant      = "Checking branch %s on %s"
	gitLSRemoteHeadsSuccessTemplateConstant    = "Checked branch %s on %s"
	gitLSRemoteHeadsFailureTemplateConstant    = "Failed to check branch %s on %s"
	gitLSRemoteTagsStartTemplateConstant       = "Listing tags %s on %s"
	gitLSRemoteTagsSuccessTemplateConstant     = "Listed tags %s on %s"
	gitLSRemoteTagsFailureTemplateConstant     = "Failed to list tags %s on %s"
	gitCloneStartTemplateConstant              = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant            = "Cloned %s into %s"
	gitCloneFailureTemplateConstant            = "Failed to clone %s into %s"
	gitCheckoutDetachedStartTemplateConstant   = "Checking out %s detached in %s"
	gitCheckoutDetachedSuccessTemplateConstant = "%[2]s now at %[1]s"
	gitCheckoutDetachedFailureTemplateConstant = "Failed to check out %s in %s"
	gitCheckoutCreateStartTemplateConstant     = "Creating branch %s in %s"
	gitCheckoutCreateSuccessTemplateConstant   = "Created branch %s in %s"
	gitCheckoutCreateFailureTemplateConstant   = "Failed to create branch %s in %s"
	gitCheckoutTrackStartTemplateConstant      = "Tracking remote branch %s in %s"
	gitCheckoutTrackSuccessTemplateConstant    = "Tracking remote branch %s in %s"
	gitCheckoutTrackFailureTemplateConstant    = "Failed to track remote branch %s in %s"
	gitCheckoutStartTemplateConstant           = "Switching %[2]s to branch %[1]s"
	gitCheckoutSuccessTemplateConstant         = "%[2]s now on branch %[1]s"
	gitCheckoutFailureTemplateConstant         = "Failed to switch %[2]s to branch %[1]s"
	gitShowRefStartTemplateConstant            = "Looking up %s in %s"
	gitShowRefSuccessTemplateConstant          = "Found %s in %s"
	gitShowRefFailureTemplateConstant          = "Did not find %s in %s"
	gitSubmoduleStartTemplateConstant          = "Initializing submodules in %[2]s"
	gitSubmoduleSuccessTemplateConstant        = "Initialized submodules in %[2]s"
	gitSubmoduleFailureTemplateConstant        = "Failed to initialize submodules in %[2]s"
	gitAddStartTemplateConstant                = "Staging %s in %s"
	gitAddSuccessTemplateConstant              = "Staged %s in %s"
	gitAddFailureTemplateConstant              = "Failed to stage %s in %s"
	gitCommitStartTemplateConstant             = "Creating commit %q in %s"
	gitCommitSuccessTemplateConstant           = "Created commit %q in %s"
	gitCommitFailureTemplateConstant           = "Commit %q not created in %s"
	gitTagStartTemplateConstant                = "Creating tag %s in %s"
	gitTagSuccessTemplateConstant              = "Created tag %s in %s"
	gitTagFailureTemplateConstant              = "Failed to create tag %s in %s"
	gitPushStartTemplateConstant               = "Pushing %s from %s"
	gitPushSuccessTemplateConstant             = "Pushed %s from %s"
	gitPushFailureTemplateConstant             = "Failed to push %s from %s"
	gitUpdateIndexStartTemplateConstant        = "Marking %s unchanged in %s"
	gitUpdateIndexSuccessTemplateConstant      = "Marked %s unchanged in %s"
	gitUpdateIndexFailureTemplateConstant      = "Failed to mark %s unchanged in %s"
	shellScriptStartTemplateConstant           = "Running script %s in %s"
	shellScriptSuccessTemplateConstant         = "Script %s finished in %s"
	shellScriptFailureTemplateConstant         = "Script %s failed in %s"
)

type messageTemplates struct {
	start   string
	success string
	failure string
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// show-ref probes are issued for every branch decision and are noisy.
func (formatter CommandMessageFormatter) shouldLogStartMessage(command ShellCommand) bool {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return true
	}
	return strings.TrimSpace(command.Details.Arguments[0]) != gitShowRefSubcommandNameConstant
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandShell:
		scriptPath := formatter.ensureValue(formatter.argumentAtIndex(command.Details.Arguments, 0))
		templates := messageTemplates{start: shellScriptStartTemplateConstant, success: shellScriptSuccessTemplateConstant, failure: shellScriptFailureTemplateConstant}
		return formatter.formatStage(templates, stage, result, failure, scriptPath, formatter.describeWorkingDirectory(command))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	subcommand := strings.TrimSpace(arguments[0])
	remainder := arguments[1:]
	var templates messageTemplates
	var subject string

	switch subcommand {
	case gitLSRemoteSubcommandNameConstant:
		positional := formatter.positionalArguments(remainder)
		remote := formatter.ensureValue(formatter.argumentAtIndex(positional, 0))
		pattern := formatter.ensureValue(formatter.argumentAtIndex(positional, 1))
		if containsArgument(remainder, gitHeadsFlagConstant) {
			templates = messageTemplates{start: gitLSRemoteHeadsStartTemplateConstant, success: gitLSRemoteHeadsSuccessTemplateConstant, failure: gitLSRemoteHeadsFailureTemplateConstant}
		} else if containsArgument(remainder, gitTagsFlagConstant) {
			templates = messageTemplates{start: gitLSRemoteTagsStartTemplateConstant, success: gitLSRemoteTagsSuccessTemplateConstant, failure: gitLSRemoteTagsFailureTemplateConstant}
		} else {
			return formatter.buildGenericMessage(command, result, failure, stage)
		}
		return formatter.formatStage(templates, stage, result, failure, pattern, remote)
	case gitCloneSubcommandNameConstant:
		positional := formatter.positionalArguments(remainder)
		remote := formatter.ensureValue(formatter.argumentAtIndex(positional, 0))
		destination := formatter.ensureValue(formatter.argumentAtIndex(positional, 1))
		templates = messageTemplates{start: gitCloneStartTemplateConstant, success: gitCloneSuccessTemplateConstant, failure: gitCloneFailureTemplateConstant}
		return formatter.formatStage(templates, stage, result, failure, remote, destination)
	case gitCheckoutSubcommandNameConstant:
		switch {
		case containsArgument(remainder, gitDetachFlagConstant):
			templates = messageTemplates{start: gitCheckoutDetachedStartTemplateConstant, success: gitCheckoutDetachedSuccessTemplateConstant, failure: gitCheckoutDetachedFailureTemplateConstant}
			subject = formatter.lastPositionalArgument(remainder)
		case containsArgument(remainder, gitTrackFlagConstant):
			templates = messageTemplates{start: gitCheckoutTrackStartTemplateConstant, success: gitCheckoutTrackSuccessTemplateConstant, failure: gitCheckoutTrackFailureTemplateConstant}
			subject = formatter.lastPositionalArgument(remainder)
		case containsArgument(remainder, gitCreateBranchFlagConstant):
			templates = messageTemplates{start: gitCheckoutCreateStartTemplateConstant, success: gitCheckoutCreateSuccessTemplateConstant, failure: gitCheckoutCreateFailureTemplateConstant}
			subject = findFlagValue(remainder, gitCreateBranchFlagConstant)
		default:
			templates = messageTemplates{start: gitCheckoutStartTemplateConstant, success: gitCheckoutSuccessTemplateConstant, failure: gitCheckoutFailureTemplateConstant}
			subject = formatter.lastPositionalArgument(remainder)
		}
	case gitShowRefSubcommandNameConstant:
		templates = messageTemplates{start: gitShowRefStartTemplateConstant, success: gitShowRefSuccessTemplateConstant, failure: gitShowRefFailureTemplateConstant}
		subject = formatter.lastPositionalArgument(remainder)
	case gitSubmoduleSubcommandNameConstant:
		templates = messageTemplates{start: gitSubmoduleStartTemplateConstant, success: gitSubmoduleSuccessTemplateConstant, failure: gitSubmoduleFailureTemplateConstant}
	case gitAddSubcommandNameConstant:
		templates = messageTemplates{start: gitAddStartTemplateConstant, success: gitAddSuccessTemplateConstant, failure: gitAddFailureTemplateConstant}
		subject = formatter.lastPositionalArgument(remainder)
	case gitCommitSubcommandNameConstant:
		templates = messageTemplates{start: gitCommitStartTemplateConstant, success: gitCommitSuccessTemplateConstant, failure: gitCommitFailureTemplateConstant}
		subject = findFlagValue(remainder, gitMessageFlagConstant)
	case gitTagSubcommandNameConstant:
		templates = messageTemplates{start: gitTagStartTemplateConstant, success: gitTagSuccessTemplateConstant, failure: gitTagFailureTemplateConstant}
		subject = findFlagValue(remainder, gitAnnotateFlagConstant)
	case gitPushSubcommandNameConstant:
		templates = messageTemplates{start: gitPushStartTemplateConstant, success: gitPushSuccessTemplateConstant, failure: gitPushFailureTemplateConstant}
		positional := formatter.positionalArguments(remainder)
		if len(positional) > 1 {
			positional = positional[1:]
		}
		subject = formatter.joinReferences(positional)
	case gitUpdateIndexSubcommandNameConstant:
		templates = messageTemplates{start: gitUpdateIndexStartTemplateConstant, success: gitUpdateIndexSuccessTemplateConstant, failure: gitUpdateIndexFailureTemplateConstant}
		subject = formatter.lastPositionalArgument(remainder)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	return formatter.formatStage(templates, stage, result, failure, formatter.ensureValue(subject), workingDirectory)
}

func (formatter CommandMessageFormatter) formatStage(templates messageTemplates, stage messageStage, result ExecutionResult, failure error, values ...any) string {
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, values...)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, values...)
	case messageStageFailure:
		return fmt.Sprintf(templates.failure, values...) + fmt.Sprintf(failureSuffixTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(templates.failure, values...) + fmt.Sprintf(executionFailureSuffixTemplateConstant, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	return fmt.Sprintf(commandLabelTemplateConstant, describeCommand(command), formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

// positionalArguments drops flags and the values of flags known to take one.
func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		trimmed := strings.TrimSpace(arguments[index])
		if len(trimmed) == 0 {
			continue
		}
		if trimmed == gitMessageFlagConstant || trimmed == gitAnnotateFlagConstant || trimmed == gitCreateBranchFlagConstant || trimmed == gitDirectoryFlagConstant {
			index++
			continue
		}
		if strings.HasPrefix(trimmed, flagPrefixConstant) {
			continue
		}
		positional = append(positional, trimmed)
	}
	return positional
}

func (formatter CommandMessageFormatter) lastPositionalArgument(arguments []string) string {
	positional := formatter.positionalArguments(arguments)
	if len(positional) == 0 {
		return emptyStringConstant
	}
	return positional[len(positional)-1]
}

func (formatter CommandMessageFormatter) joinReferences(references []string) string {
	cleaned := make([]string, 0, len(references))
	for _, reference := range references {
		trimmed := strings.TrimSpace(reference)
		if len(trimmed) == 0 {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return strings.Join(cleaned, ", ")
}

func findFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments); index++ {
		if strings.TrimSpace(arguments[index]) == flag && index+1 < len(arguments) {
			return strings.TrimSpace(arguments[index+1])
		}
	}
	return emptyStringConstant
}
