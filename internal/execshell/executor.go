package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CommandName identifies an external executable.
type CommandName string

const (
	// CommandGit runs the git client.
	CommandGit CommandName = "git"
	// CommandShell runs POSIX shell scripts such as device-type generators.
	CommandShell CommandName = "bash"
)

const (
	commandFailedTemplateConstant           = "%s exited with code %d"
	commandFailedWithOutputTemplateConstant = "%s exited with code %d: %s"
	commandExecutionTemplateConstant        = "%s could not be executed: %v"
	logFieldCommandConstant                 = "command"
	logFieldArgumentsConstant               = "arguments"
	logFieldWorkingDirectoryConstant        = "working_directory"
	logFieldExitCodeConstant                = "exit_code"
	logFieldStandardErrorConstant           = "stderr"
)

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New("shell executor logger not configured")
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New("shell executor command runner not configured")
)

// CommandDetails carries the arguments and environment of one invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a finished process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a process that finished with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (commandFailedError CommandFailedError) Error() string {
	label := describeCommand(commandFailedError.Command)
	trimmedStandardError := strings.TrimSpace(commandFailedError.Result.StandardError)
	if len(trimmedStandardError) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, label, commandFailedError.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithOutputTemplateConstant, label, commandFailedError.Result.ExitCode, trimmedStandardError)
}

// CommandExecutionError reports a process that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (commandExecutionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionTemplateConstant, describeCommand(commandExecutionError.Command), commandExecutionError.Cause)
}

// Unwrap exposes the underlying cause.
func (commandExecutionError CommandExecutionError) Unwrap() error {
	return commandExecutionError.Cause
}

// ExecutorOption customizes a ShellExecutor.
type ExecutorOption func(*ShellExecutor)

// WithCommandEventObserver registers an observer notified about every command.
func WithCommandEventObserver(observer CommandEventObserver) ExecutorOption {
	return func(executor *ShellExecutor) {
		if observer != nil {
			executor.observer = observer
		}
	}
}

// WithRedactedValues masks the supplied secrets in logs and errors.
func WithRedactedValues(secretValues ...string) ExecutorOption {
	return func(executor *ShellExecutor) {
		executor.redactor = executor.redactor.With(secretValues...)
	}
}

// ShellExecutor runs external commands, logging each lifecycle step.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	formatter CommandMessageFormatter
	observer  CommandEventObserver
	redactor  Redactor
}

// NewShellExecutor validates dependencies and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, options ...ExecutorOption) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:    logger,
		runner:    runner,
		formatter: CommandMessageFormatter{},
		observer:  noopCommandEventObserver{},
	}
	for _, option := range options {
		option(executor)
	}
	return executor, nil
}

// ExecuteGit runs git with the supplied details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteShellScript runs a script through bash.
func (executor *ShellExecutor) ExecuteShellScript(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandShell, Details: details})
}

// Execute runs command and converts non-zero exit codes into CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	displayCommand := executor.redactor.RedactCommand(command)
	commandFields := []zap.Field{
		zap.String(logFieldCommandConstant, string(displayCommand.Name)),
		zap.Strings(logFieldArgumentsConstant, displayCommand.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, displayCommand.Details.WorkingDirectory),
	}

	if executor.formatter.shouldLogStartMessage(displayCommand) {
		executor.logger.Debug(executor.formatter.BuildStartedMessage(displayCommand), commandFields...)
	}
	executor.observer.CommandStarted(displayCommand)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Warn(executor.redactor.Redact(executor.formatter.BuildExecutionFailureMessage(displayCommand, runError)), commandFields...)
		executor.observer.CommandExecutionFailed(displayCommand, runError)
		return ExecutionResult{}, CommandExecutionError{Command: displayCommand, Cause: runError}
	}

	executor.observer.CommandCompleted(displayCommand, executionResult)

	if executionResult.ExitCode != 0 {
		redactedResult := ExecutionResult{
			StandardOutput: executor.redactor.Redact(executionResult.StandardOutput),
			StandardError:  executor.redactor.Redact(executionResult.StandardError),
			ExitCode:       executionResult.ExitCode,
		}
		failureFields := append(commandFields,
			zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
			zap.String(logFieldStandardErrorConstant, strings.TrimSpace(redactedResult.StandardError)),
		)
		executor.logger.Warn(executor.formatter.BuildFailureMessage(displayCommand, redactedResult), failureFields...)
		return ExecutionResult{}, CommandFailedError{Command: displayCommand, Result: redactedResult}
	}

	executor.logger.Debug(executor.formatter.BuildSuccessMessage(displayCommand), commandFields...)
	return executionResult, nil
}

func describeCommand(command ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return string(command.Name)
	}
	return string(command.Name) + commandArgumentsJoinSeparatorConstant + strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant)
}
