package ui

import (
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/execshell"
)

const (
	logFieldOperationConstant = "operation"
	flagPrefixConstant        = "-"
)

var progressSubcommands = map[string]struct{}{
	"clone":    {},
	"checkout": {},
	"commit":   {},
	"tag":      {},
	"push":     {},
}

// CommandEventObservers fans every event out to each observer in order.
type CommandEventObservers []execshell.CommandEventObserver

// CommandStarted implements execshell.CommandEventObserver.
func (observers CommandEventObservers) CommandStarted(command execshell.ShellCommand) {
	for _, observer := range observers {
		observer.CommandStarted(command)
	}
}

// CommandCompleted implements execshell.CommandEventObserver.
func (observers CommandEventObservers) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	for _, observer := range observers {
		observer.CommandCompleted(command, result)
	}
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (observers CommandEventObservers) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	for _, observer := range observers {
		observer.CommandExecutionFailed(command, failure)
	}
}

// ProgressLogger reports completed repository-changing git commands at info
// level. Failures are left to the executor, which logs them at warn.
type ProgressLogger struct {
	logger    *zap.Logger
	formatter execshell.CommandMessageFormatter
}

// NewProgressLogger constructs a progress logger backed by logger.
func NewProgressLogger(logger *zap.Logger) *ProgressLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressLogger{logger: logger, formatter: execshell.CommandMessageFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (progressLogger *ProgressLogger) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted logs successful clone, checkout, commit, tag and push
// commands. Scripts are always reported.
func (progressLogger *ProgressLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if progressLogger == nil || result.ExitCode != 0 {
		return
	}
	operation, reportable := progressOperation(command)
	if !reportable {
		return
	}
	progressLogger.logger.Info(progressLogger.formatter.BuildSuccessMessage(command), zap.String(logFieldOperationConstant, operation))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (progressLogger *ProgressLogger) CommandExecutionFailed(execshell.ShellCommand, error) {}

func progressOperation(command execshell.ShellCommand) (string, bool) {
	if command.Name == execshell.CommandShell {
		return string(command.Name), true
	}
	if command.Name != execshell.CommandGit {
		return "", false
	}
	for _, argument := range command.Details.Arguments {
		if strings.HasPrefix(argument, flagPrefixConstant) {
			continue
		}
		_, reportable := progressSubcommands[argument]
		return argument, reportable
	}
	return "", false
}
