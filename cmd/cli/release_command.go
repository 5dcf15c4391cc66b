package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/release"
	"github.com/temirov/esrctl/internal/report"
	"github.com/temirov/esrctl/internal/utils"
	flagutils "github.com/temirov/esrctl/internal/utils/flags"
	pathutils "github.com/temirov/esrctl/internal/utils/path"
)

const (
	releaseCommandUseConstant              = "release [esr-version] [os-version]"
	releaseCommandShortConstant            = "Declare an ESR across the device repositories"
	releaseCommandLongConstant             = "release cuts the <esr>.x branch and v<esr>.0 tag in every device repository released from the <os> version, records the ESR in repo.yml, VERSION and CHANGELOG.md, then reports and deploys the devices carrying the release. Repositories already on the ESR are reported without changes."
	releaseCommandExampleConstant          = "esrctl release 2023.01 2.68 --dry-run\nesrctl release --esr-version 2023.01 --os-version 2.68 --repositories git@github.com:balena-os/balena-raspberrypi.git"
	esrVersionFlagNameConstant             = "esr-version"
	esrVersionFlagUsageConstant            = "ESR version, <YYYY>.<MM>."
	osVersionFlagNameConstant              = "os-version"
	osVersionFlagUsageConstant             = "balenaOS version the ESR starts from, <major>.<minor>."
	organizationFlagNameConstant           = "organization"
	organizationFlagUsageConstant          = "GitHub organization holding the device repositories."
	repositoriesFlagNameConstant           = "repositories"
	repositoriesFlagUsageConstant          = "Release these remotes instead of discovering them."
	workspaceFlagNameConstant              = "workspace"
	workspaceFlagUsageConstant             = "Clone into a per-run subdirectory of this directory instead of a temporary one."
	keepWorkspaceFlagNameConstant          = "keep-workspace"
	keepWorkspaceFlagUsageConstant         = "Keep the temporary workspace after the run."
	concurrencyFlagNameConstant            = "concurrency"
	concurrencyFlagUsageConstant           = "Repositories released in parallel."
	dryRunFlagNameConstant                 = "dry-run"
	dryRunFlagShorthandConstant            = "n"
	dryRunFlagUsageConstant                = "Commit and tag locally without pushing or deploying."
	failOnRepositoryErrorFlagNameConstant  = "fail-on-repository-error"
	failOnRepositoryErrorFlagUsageConstant = "Exit with an error when any repository fails."
	remoteListerFlagNameConstant           = "remote-lister"
	remoteListerFlagUsageConstant          = "Backend listing remote tags and branches."
	deployEnvironmentFlagNameConstant      = "deploy-environment"
	deployEnvironmentFlagUsageConstant     = "Deploy target passed to the deploy job."
	reportFileFlagNameConstant             = "report-file"
	reportFileFlagUsageConstant            = "Write the run report to this file."
	reportFormatFlagNameConstant           = "report-format"
	reportFormatFlagUsageConstant          = "Report file encoding, inferred from the file extension when empty."
	colorFlagNameConstant                  = "color"
	colorFlagUsageConstant                 = "Colorize the console report."
	metricsTextfileFlagNameConstant        = "metrics-textfile"
	metricsTextfileFlagUsageConstant       = "Write run metrics in Prometheus text format to this file."
	maximumReleaseArgumentsConstant        = 2
	releaseFinishedMessageConstant         = "ESR release finished"
	logFieldFailedConstant                 = "failed_repositories"
	logFieldReportFileConstant             = "report_file"
	logFieldMetricsFileConstant            = "metrics_textfile"
	wroteReportMessageConstant             = "Wrote run report"
	wroteMetricsMessageConstant            = "Wrote run metrics"
	servicesErrorTemplateConstant          = "unable to prepare release: %w"
	renderErrorTemplateConstant            = "unable to render report: %w"
)

// ReleaseCommandBuilder assembles the release command.
type ReleaseCommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	ConfigurationProvider func() ApplicationConfiguration
	CredentialsProvider   func() Credentials
	ServiceFactory        func() ServiceFactory
	FilesystemProvider    func() afero.Fs
	HomeExpander          *pathutils.HomeExpander
}

type releaseFlagValues struct {
	esrVersion            string
	osVersion             string
	organization          string
	repositories          []string
	workspace             string
	keepWorkspace         bool
	concurrency           int
	dryRun                bool
	failOnRepositoryError bool
	remoteLister          string
	deployEnvironment     string
	reportFile            string
	reportFormat          string
	colorMode             string
	metricsTextfile       string
}

// Build constructs the release command.
func (builder *ReleaseCommandBuilder) Build() *cobra.Command {
	flagValues := &releaseFlagValues{}
	command := &cobra.Command{
		Use:     releaseCommandUseConstant,
		Short:   releaseCommandShortConstant,
		Long:    releaseCommandLongConstant,
		Example: releaseCommandExampleConstant,
		Args:    cobra.MaximumNArgs(maximumReleaseArgumentsConstant),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments, flagValues)
		},
	}

	flagSet := command.Flags()
	flagSet.StringVar(&flagValues.esrVersion, esrVersionFlagNameConstant, "", esrVersionFlagUsageConstant)
	flagSet.StringVar(&flagValues.osVersion, osVersionFlagNameConstant, "", osVersionFlagUsageConstant)
	flagSet.StringVar(&flagValues.organization, organizationFlagNameConstant, "", organizationFlagUsageConstant)
	flagSet.StringSliceVar(&flagValues.repositories, repositoriesFlagNameConstant, nil, repositoriesFlagUsageConstant)
	flagSet.StringVar(&flagValues.workspace, workspaceFlagNameConstant, "", workspaceFlagUsageConstant)
	flagutils.AddToggleFlag(flagSet, &flagValues.keepWorkspace, keepWorkspaceFlagNameConstant, "", false, keepWorkspaceFlagUsageConstant)
	flagSet.IntVar(&flagValues.concurrency, concurrencyFlagNameConstant, release.DefaultConcurrency, concurrencyFlagUsageConstant)
	flagutils.AddToggleFlag(flagSet, &flagValues.dryRun, dryRunFlagNameConstant, dryRunFlagShorthandConstant, false, dryRunFlagUsageConstant)
	flagutils.AddToggleFlag(flagSet, &flagValues.failOnRepositoryError, failOnRepositoryErrorFlagNameConstant, "", false, failOnRepositoryErrorFlagUsageConstant)
	flagutils.AddChoiceFlag(flagSet, &flagValues.remoteLister, remoteListerFlagNameConstant, RemoteListerShell, remoteListerChoices, remoteListerFlagUsageConstant)
	flagSet.StringVar(&flagValues.deployEnvironment, deployEnvironmentFlagNameConstant, "", deployEnvironmentFlagUsageConstant)
	flagSet.StringVar(&flagValues.reportFile, reportFileFlagNameConstant, "", reportFileFlagUsageConstant)
	flagutils.AddChoiceFlag(flagSet, &flagValues.reportFormat, reportFormatFlagNameConstant, "", reportFormatChoices, reportFormatFlagUsageConstant)
	flagutils.AddChoiceFlag(flagSet, &flagValues.colorMode, colorFlagNameConstant, ColorModeAuto, colorModeChoices, colorFlagUsageConstant)
	flagSet.StringVar(&flagValues.metricsTextfile, metricsTextfileFlagNameConstant, "", metricsTextfileFlagUsageConstant)

	return command
}

func (builder *ReleaseCommandBuilder) run(command *cobra.Command, arguments []string, flagValues *releaseFlagValues) error {
	logger := builder.LoggerProvider()
	configuration := applyReleaseFlags(command, builder.ConfigurationProvider(), flagValues)
	runCredentials := builder.CredentialsProvider()
	filesystem := builder.FilesystemProvider()

	esrVersion, osVersion := releaseVersions(arguments, flagValues)
	runID, _ := utils.NewCommandContextAccessor().RunID(command.Context())
	options, optionsError := release.NewOptions(esrVersion, osVersion, release.Options{
		Organization:          configuration.GitHub.Organization,
		Repositories:          configuration.Release.Repositories,
		Workspace:             builder.HomeExpander.Expand(strings.TrimSpace(configuration.Release.Workspace)),
		KeepWorkspace:         configuration.Release.KeepWorkspace,
		Concurrency:           configuration.Release.Concurrency,
		DryRun:                configuration.Release.DryRun,
		FailOnRepositoryError: configuration.Release.FailOnRepositoryError,
		DeployEnvironment:     configuration.Jenkins.Environment,
		RunID:                 runID,
		Token:                 runCredentials.GitHubToken,
	})
	if optionsError != nil {
		return optionsError
	}
	reportFormat, formatError := resolveReportFormat(configuration.Report)
	if formatError != nil {
		return formatError
	}

	services, servicesError := builder.ServiceFactory()(ServiceRequest{
		Logger:        logger,
		Configuration: configuration,
		Credentials:   runCredentials,
		Filesystem:    filesystem,
		DryRun:        options.DryRun,
	})
	if servicesError != nil {
		return fmt.Errorf(servicesErrorTemplateConstant, servicesError)
	}

	fleetReport, runError := services.Runner.Run(commandContext(command), options)
	document := report.NewDocument(fleetReport)
	logger.Info(releaseFinishedMessageConstant, zap.Int(logFieldFailedConstant, len(fleetReport.Failed())))

	outputError := builder.writeOutputs(utils.NewFlushingWriter(command.OutOrStdout()), filesystem, configuration.Report, reportFormat, document, services.Metrics, logger)
	return multierr.Append(runError, outputError)
}

func (builder *ReleaseCommandBuilder) writeOutputs(writer io.Writer, filesystem afero.Fs, configuration ReportConfiguration, format report.Format, document report.Document, metrics *report.Metrics, logger *zap.Logger) error {
	var outputErrors error

	renderer, rendererError := report.NewConsoleRenderer(writer, colorEnabled(configuration.Color))
	if rendererError == nil {
		rendererError = renderer.Render(document)
	}
	if rendererError != nil {
		outputErrors = multierr.Append(outputErrors, fmt.Errorf(renderErrorTemplateConstant, rendererError))
	}

	if reportFile := builder.HomeExpander.Expand(strings.TrimSpace(configuration.File)); len(reportFile) > 0 {
		if writeError := report.WriteFile(filesystem, reportFile, format, document); writeError != nil {
			outputErrors = multierr.Append(outputErrors, writeError)
		} else {
			logger.Info(wroteReportMessageConstant, zap.String(logFieldReportFileConstant, reportFile))
		}
	}

	if metricsFile := builder.HomeExpander.Expand(strings.TrimSpace(configuration.MetricsTextfile)); len(metricsFile) > 0 && metrics != nil {
		metrics.ObserveRun(document)
		if writeError := metrics.WriteTextfile(filesystem, metricsFile); writeError != nil {
			outputErrors = multierr.Append(outputErrors, writeError)
		} else {
			logger.Info(wroteMetricsMessageConstant, zap.String(logFieldMetricsFileConstant, metricsFile))
		}
	}
	return outputErrors
}

// applyReleaseFlags overrides configuration with the flags set on command.
func applyReleaseFlags(command *cobra.Command, configuration ApplicationConfiguration, flagValues *releaseFlagValues) ApplicationConfiguration {
	changed := command.Flags().Changed
	if changed(organizationFlagNameConstant) {
		configuration.GitHub.Organization = flagValues.organization
	}
	if changed(repositoriesFlagNameConstant) {
		configuration.Release.Repositories = flagValues.repositories
	}
	if changed(workspaceFlagNameConstant) {
		configuration.Release.Workspace = flagValues.workspace
	}
	if changed(keepWorkspaceFlagNameConstant) {
		configuration.Release.KeepWorkspace = flagValues.keepWorkspace
	}
	if changed(concurrencyFlagNameConstant) {
		configuration.Release.Concurrency = flagValues.concurrency
	}
	if changed(dryRunFlagNameConstant) {
		configuration.Release.DryRun = flagValues.dryRun
	}
	if changed(failOnRepositoryErrorFlagNameConstant) {
		configuration.Release.FailOnRepositoryError = flagValues.failOnRepositoryError
	}
	if changed(remoteListerFlagNameConstant) {
		configuration.Release.RemoteLister = flagValues.remoteLister
	}
	if changed(deployEnvironmentFlagNameConstant) {
		configuration.Jenkins.Environment = flagValues.deployEnvironment
	}
	if changed(reportFileFlagNameConstant) {
		configuration.Report.File = flagValues.reportFile
	}
	if changed(reportFormatFlagNameConstant) {
		configuration.Report.Format = flagValues.reportFormat
	}
	if changed(colorFlagNameConstant) {
		configuration.Report.Color = flagValues.colorMode
	}
	if changed(metricsTextfileFlagNameConstant) {
		configuration.Report.MetricsTextfile = flagValues.metricsTextfile
	}
	return configuration
}

// releaseVersions prefers positional arguments over the version flags.
func releaseVersions(arguments []string, flagValues *releaseFlagValues) (string, string) {
	esrVersion := strings.TrimSpace(flagValues.esrVersion)
	osVersion := strings.TrimSpace(flagValues.osVersion)
	if len(arguments) > 0 {
		esrVersion = strings.TrimSpace(arguments[0])
	}
	if len(arguments) > 1 {
		osVersion = strings.TrimSpace(arguments[1])
	}
	return esrVersion, osVersion
}

func resolveReportFormat(configuration ReportConfiguration) (report.Format, error) {
	if len(strings.TrimSpace(configuration.File)) == 0 {
		return report.FormatJSON, nil
	}
	return report.ParseFormat(configuration.Format, configuration.File)
}

func colorEnabled(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ColorModeAlways:
		return true
	case ColorModeNever:
		return false
	default:
		return !color.NoColor
	}
}

func commandContext(command *cobra.Command) context.Context {
	if executionContext := command.Context(); executionContext != nil {
		return executionContext
	}
	return context.Background()
}
