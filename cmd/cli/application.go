package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/credentials"
	"github.com/temirov/esrctl/internal/utils"
	flagutils "github.com/temirov/esrctl/internal/utils/flags"
	pathutils "github.com/temirov/esrctl/internal/utils/path"
)

const (
	applicationNameConstant                 = "esrctl"
	applicationShortDescriptionConstant     = "Declare Extended Support Releases across balenaOS device repositories"
	applicationLongDescriptionConstant      = "esrctl discovers balenaOS device repositories, cuts ESR branches and tags in each of them, reports which devices carry the release and triggers their deploy jobs."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML, JSON or TOML)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format."
	logFileFlagNameConstant                 = "log-file"
	logFileFlagUsageConstant                = "Also write logs to this file."
	environmentFileFlagNameConstant         = "env-file"
	environmentFileFlagUsageConstant        = "Additional .env file loaded before configuration."
	environmentPrefixConstant               = "ESRCTL"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	currentDirectorySearchPathConstant      = "."
	userConfigurationSearchPathConstant     = "~/.esrctl"
	currentDirectoryEnvironmentFileConstant = ".env"
	userEnvironmentFileConstant             = "~/.esrctl/.env"
	configurationInitializedMessageConstant = "configuration initialized"
	logFieldLogLevelConstant                = "log_level"
	logFieldLogFormatConstant               = "log_format"
	logFieldConfigFileConstant              = "config_file"
	logFieldEnvironmentFilesConstant        = "env_files"
	logFieldRunIDConstant                   = "run_id"
	logFieldCommandConstant                 = "command"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	credentialsErrorTemplateConstant        = "unable to resolve %s token: %w"
	githubCredentialNameConstant            = "github"
	cloudCredentialNameConstant             = "cloud"
	jenkinsCredentialNameConstant           = "jenkins"
)

// Credentials holds the resolved tokens of one run.
type Credentials struct {
	GitHubToken  string
	CloudToken   string
	JenkinsToken string
}

// Values lists every non-empty token for log redaction.
func (runCredentials Credentials) Values() []string {
	values := make([]string, 0, 3)
	for _, token := range []string{runCredentials.GitHubToken, runCredentials.CloudToken, runCredentials.JenkinsToken} {
		if len(token) > 0 {
			values = append(values, token)
		}
	}
	return values
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	homeExpander           *pathutils.HomeExpander
	commandContextAccessor utils.CommandContextAccessor
	filesystem             afero.Fs
	environmentLookup      credentials.EnvironmentLookup
	serviceFactory         ServiceFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	credentials            Credentials
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	logFileFlagValue       string
	environmentFileValues  []string
}

// ApplicationOption customizes an Application, mainly for tests.
type ApplicationOption func(*Application)

// WithFilesystem replaces the filesystem used for workspaces, reports and token files.
func WithFilesystem(filesystem afero.Fs) ApplicationOption {
	return func(application *Application) {
		if filesystem != nil {
			application.filesystem = filesystem
		}
	}
}

// WithEnvironmentLookup replaces the environment used for token fallbacks.
func WithEnvironmentLookup(environmentLookup credentials.EnvironmentLookup) ApplicationOption {
	return func(application *Application) {
		if environmentLookup != nil {
			application.environmentLookup = environmentLookup
		}
	}
}

// WithServiceFactory replaces the builder of release collaborators.
func WithServiceFactory(serviceFactory ServiceFactory) ApplicationOption {
	return func(application *Application) {
		if serviceFactory != nil {
			application.serviceFactory = serviceFactory
		}
	}
}

// WithOutput redirects command output.
func WithOutput(writer io.Writer) ApplicationOption {
	return func(application *Application) {
		application.rootCommand.SetOut(writer)
		application.rootCommand.SetErr(writer)
	}
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication(options ...ApplicationOption) *Application {
	homeExpander := pathutils.NewHomeExpander()
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		homeExpander.ExpandAll([]string{currentDirectorySearchPathConstant, userConfigurationSearchPathConstant}),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		homeExpander:           homeExpander,
		commandContextAccessor: utils.NewCommandContextAccessor(),
		filesystem:             afero.NewOsFs(),
		environmentLookup:      os.LookupEnv,
		serviceFactory:         NewDefaultServices,
		logger:                 zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	flagutils.AddChoiceFlag(persistentFlags, &application.logFormatFlagValue, logFormatFlagNameConstant, string(utils.LogFormatConsole), []string{string(utils.LogFormatStructured), string(utils.LogFormatConsole)}, logFormatFlagUsageConstant)
	persistentFlags.StringVar(&application.logFileFlagValue, logFileFlagNameConstant, "", logFileFlagUsageConstant)
	persistentFlags.StringSliceVar(&application.environmentFileValues, environmentFileFlagNameConstant, nil, environmentFileFlagUsageConstant)

	releaseBuilder := ReleaseCommandBuilder{
		LoggerProvider:        application.currentLogger,
		ConfigurationProvider: application.currentConfiguration,
		CredentialsProvider:   application.currentCredentials,
		ServiceFactory:        application.currentServiceFactory,
		FilesystemProvider:    application.currentFilesystem,
		HomeExpander:          homeExpander,
	}
	cobraCommand.AddCommand(releaseBuilder.Build())

	discoverBuilder := DiscoverCommandBuilder{
		LoggerProvider:        application.currentLogger,
		ConfigurationProvider: application.currentConfiguration,
		CredentialsProvider:   application.currentCredentials,
		ServiceFactory:        application.currentServiceFactory,
		FilesystemProvider:    application.currentFilesystem,
	}
	cobraCommand.AddCommand(discoverBuilder.Build())

	application.rootCommand = cobraCommand
	for _, option := range options {
		option(application)
	}

	return application
}

// RootCommand exposes the command tree.
func (application *Application) RootCommand() *cobra.Command {
	return application.rootCommand
}

// Execute runs the command tree with arguments and flushes the logger.
func (application *Application) Execute(arguments []string) error {
	application.rootCommand.SetArgs(flagutils.NormalizeToggleArguments(application.rootCommand, arguments))
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and runs it with the process arguments.
func Execute() error {
	return NewApplication().Execute(os.Args[1:])
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	environmentFiles := []string{currentDirectoryEnvironmentFileConstant, userEnvironmentFileConstant}
	environmentFiles = application.homeExpander.ExpandAll(append(environmentFiles, application.environmentFileValues...))
	application.configurationLoader.SetEnvironmentFiles(environmentFiles...)

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.homeExpander.Expand(application.configurationFilePath),
		nil,
		&application.configuration,
	)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}
	if application.persistentFlagChanged(command, logFileFlagNameConstant) {
		application.configuration.Common.LogFile = application.logFileFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(utils.LoggerOptions{
		Level:   utils.LogLevel(application.configuration.Common.LogLevel),
		Format:  utils.LogFormat(application.configuration.Common.LogFormat),
		LogFile: application.homeExpander.Expand(application.configuration.Common.LogFile),
	})
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	resolvedCredentials, credentialsError := application.resolveCredentials()
	if credentialsError != nil {
		return credentialsError
	}
	application.credentials = resolvedCredentials

	runID := uuid.NewString()
	application.logger = logger.With(zap.String(logFieldRunIDConstant, runID))
	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(logFieldCommandConstant, command.CommandPath()),
		zap.String(logFieldLogLevelConstant, application.configuration.Common.LogLevel),
		zap.String(logFieldLogFormatConstant, application.configuration.Common.LogFormat),
		zap.String(logFieldConfigFileConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Strings(logFieldEnvironmentFilesConstant, application.configurationMetadata.EnvironmentFilesUsed),
	)

	updatedContext := application.commandContextAccessor.WithConfigurationFilePath(command.Context(), application.configurationMetadata.ConfigFileUsed)
	updatedContext = application.commandContextAccessor.WithRunID(updatedContext, runID)
	command.SetContext(updatedContext)
	return nil
}

// resolveCredentials runs after configuration so tokens from .env files are visible.
func (application *Application) resolveCredentials() (Credentials, error) {
	resolver, resolverError := credentials.NewResolver(application.environmentLookup, application.filesystem)
	if resolverError != nil {
		return Credentials{}, resolverError
	}

	githubToken, githubError := resolver.Resolve(application.configuration.GitHub.Token, credentials.GitHubTokenEnvironment()...)
	if githubError != nil {
		return Credentials{}, fmt.Errorf(credentialsErrorTemplateConstant, githubCredentialNameConstant, githubError)
	}
	cloudToken, cloudError := resolver.Resolve(application.configuration.Cloud.Token)
	if cloudError != nil {
		return Credentials{}, fmt.Errorf(credentialsErrorTemplateConstant, cloudCredentialNameConstant, cloudError)
	}
	jenkinsToken, jenkinsError := resolver.Resolve(application.configuration.Jenkins.Token)
	if jenkinsError != nil {
		return Credentials{}, fmt.Errorf(credentialsErrorTemplateConstant, jenkinsCredentialNameConstant, jenkinsError)
	}
	return Credentials{GitHubToken: githubToken, CloudToken: cloudToken, JenkinsToken: jenkinsToken}, nil
}

func (application *Application) currentLogger() *zap.Logger {
	return application.logger
}

func (application *Application) currentConfiguration() ApplicationConfiguration {
	return application.configuration
}

func (application *Application) currentCredentials() Credentials {
	return application.credentials
}

func (application *Application) currentServiceFactory() ServiceFactory {
	return application.serviceFactory
}

func (application *Application) currentFilesystem() afero.Fs {
	return application.filesystem
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{command.PersistentFlags(), command.InheritedFlags()}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}
	for _, flagSet := range flagSetsToInspect {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}
	return false
}
