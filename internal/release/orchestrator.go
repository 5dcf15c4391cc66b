package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/fleet"
	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/repostate"
)

const (
	workspacePrefixConstant           = "esrctl-"
	workspacePermissionsConstant      = 0o755
	duplicateNameSeparatorConstant    = "-"
	logFieldRunIDConstant             = "run_id"
	logFieldRepositoryConstant        = "repository"
	logFieldWorkspaceConstant         = "workspace"
	logFieldCountConstant             = "count"
	logFieldDeviceConstant            = "device"
	logFieldEnvironmentConstant       = "environment"
	logFieldPreviousTagConstant       = "previous_tag"
	workingInMessageConstant          = "Working in workspace"
	discoveredMessageConstant         = "Discovered device repositories"
	keptWorkspaceMessageConstant      = "Keeping workspace"
	removeWorkspaceWarningConstant    = "Unable to remove workspace"
	duplicateDeviceWarningConstant    = "Device reported by more than one repository"
	deprecatedDevicesWarningConstant  = "Deprecated devices might need to be removed from the repository list"
	missingDevicesWarningConstant     = "Canonical devices without an ESR release"
	allDevicesReleasedMessageConstant = "All canonical devices have an ESR branch"
	deployingMessageConstant          = "Deploying ESR release"
	deploySkippedDryRunMessage        = "Dry run, skipping deploy"
	deployFailedWarningConstant       = "Deploy trigger failed"
	repositoryFactoryFailedMessage    = "Unable to prepare repository"
	workspaceErrorTemplate            = "prepare workspace: %w"
	discoveryErrorTemplate            = "discover repositories: %w"
	canonicalDevicesErrorTemplate     = "fetch canonical device types: %w"
)

var (
	// ErrMachineNotConfigured indicates the orchestrator lacks a state machine.
	ErrMachineNotConfigured = errors.New("release state machine not configured")
	// ErrRepositoryFactoryNotConfigured indicates the orchestrator cannot open repositories.
	ErrRepositoryFactoryNotConfigured = errors.New("release repository factory not configured")
	// ErrCatalogNotConfigured indicates the orchestrator lacks a fleet catalog.
	ErrCatalogNotConfigured = errors.New("release fleet catalog not configured")
	// ErrWorkspaceFilesystemNotConfigured indicates the orchestrator lacks a filesystem.
	ErrWorkspaceFilesystemNotConfigured = errors.New("release workspace filesystem not configured")
)

// RepositoryFactory opens the working copy described by handle.
type RepositoryFactory func(handle repostate.Handle, logger *zap.Logger) (RepositoryOperations, error)

// FleetCatalog is the fleet-level data source and deploy sink.
type FleetCatalog interface {
	DiscoverRepositories(executionContext context.Context, organization string) ([]string, error)
	CanonicalDeviceTypes(executionContext context.Context) ([]string, error)
	CanonicalComplete() bool
	DeployConfigured() bool
	TriggerDeploy(executionContext context.Context, device string, tag string, environment string) error
}

// DeployResult is the outcome of one deploy trigger.
type DeployResult struct {
	Device  string
	Tag     string
	Skipped bool
	Err     error
}

// FleetReport aggregates a fleet run.
type FleetReport struct {
	RunID          string
	ESRVersion     esr.ESRVersion
	OSVersion      esr.OSVersion
	Workspace      string
	DryRun         bool
	StartedAt      time.Time
	FinishedAt     time.Time
	Repositories   []RepositoryResult
	Classification fleet.Classification
	Deploys        []DeployResult
}

// Failed returns the repositories that ended in FAILED.
func (report FleetReport) Failed() []RepositoryResult {
	failed := make([]RepositoryResult, 0)
	for _, result := range report.Repositories {
		if result.Status == StatusFailed {
			failed = append(failed, result)
		}
	}
	return failed
}

// OrchestratorDependencies lists the collaborators of an Orchestrator.
type OrchestratorDependencies struct {
	Logger            *zap.Logger
	Machine           *Machine
	RepositoryFactory RepositoryFactory
	Catalog           FleetCatalog
	Filesystem        afero.Fs
	Clock             func() time.Time
}

// Orchestrator runs the release machine across the fleet.
type Orchestrator struct {
	logger            *zap.Logger
	machine           *Machine
	repositoryFactory RepositoryFactory
	catalog           FleetCatalog
	filesystem        afero.Fs
	clock             func() time.Time
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(dependencies OrchestratorDependencies) (*Orchestrator, error) {
	if dependencies.Machine == nil {
		return nil, ErrMachineNotConfigured
	}
	if dependencies.RepositoryFactory == nil {
		return nil, ErrRepositoryFactoryNotConfigured
	}
	if dependencies.Catalog == nil {
		return nil, ErrCatalogNotConfigured
	}
	if dependencies.Filesystem == nil {
		return nil, ErrWorkspaceFilesystemNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		logger:            logger,
		machine:           dependencies.Machine,
		repositoryFactory: dependencies.RepositoryFactory,
		catalog:           dependencies.Catalog,
		filesystem:        dependencies.Filesystem,
		clock:             clock,
	}, nil
}

// Run discovers repositories, releases each one and classifies and deploys
// the released devices. Discovery failures abort the run. Repository failures
// are reported per repository and returned only when
// Options.FailOnRepositoryError is set.
func (orchestrator *Orchestrator) Run(executionContext context.Context, options Options) (FleetReport, error) {
	runID := options.RunID
	if len(runID) == 0 {
		runID = uuid.NewString()
	}
	logger := orchestrator.logger.With(zap.String(logFieldRunIDConstant, runID))
	report := FleetReport{
		RunID:      runID,
		ESRVersion: options.ESRVersion,
		OSVersion:  options.OSVersion,
		DryRun:     options.DryRun,
		StartedAt:  orchestrator.clock(),
	}

	workspace, cleanup, workspaceError := orchestrator.prepareWorkspace(options, runID, logger)
	if workspaceError != nil {
		return report, fmt.Errorf(workspaceErrorTemplate, workspaceError)
	}
	defer cleanup()
	report.Workspace = workspace
	logger.Info(workingInMessageConstant, zap.String(logFieldWorkspaceConstant, workspace))

	remotes := options.Repositories
	if len(remotes) == 0 {
		discovered, discoveryError := orchestrator.catalog.DiscoverRepositories(executionContext, options.Organization)
		if discoveryError != nil {
			return report, fmt.Errorf(discoveryErrorTemplate, discoveryError)
		}
		remotes = discovered
	}
	logger.Info(discoveredMessageConstant, zap.Int(logFieldCountConstant, len(remotes)))

	report.Repositories = orchestrator.releaseRepositories(executionContext, options, workspace, remotes, logger)

	released := orchestrator.aggregateDevices(report.Repositories, logger)
	canonical, canonicalError := orchestrator.catalog.CanonicalDeviceTypes(executionContext)
	if canonicalError != nil {
		report.FinishedAt = orchestrator.clock()
		return report, fmt.Errorf(canonicalDevicesErrorTemplate, canonicalError)
	}
	report.Classification = fleet.Classify(released, canonical, orchestrator.catalog.CanonicalComplete())
	orchestrator.logClassification(report.Classification, logger)
	report.Deploys = orchestrator.triggerDeploys(executionContext, options, report.Classification, logger)
	report.FinishedAt = orchestrator.clock()

	if options.FailOnRepositoryError {
		var repositoryErrors error
		for _, failedResult := range report.Failed() {
			repositoryErrors = multierr.Append(repositoryErrors, failedResult.Err)
		}
		return report, repositoryErrors
	}
	return report, nil
}

// prepareWorkspace returns the directory clones of this run live in. A
// configured workspace is kept and gets one subdirectory per run, so earlier
// clones never occupy the paths of a rerun.
func (orchestrator *Orchestrator) prepareWorkspace(options Options, runID string, logger *zap.Logger) (string, func(), error) {
	if len(options.Workspace) > 0 {
		runWorkspace := filepath.Join(options.Workspace, runID)
		if mkdirError := orchestrator.filesystem.MkdirAll(runWorkspace, workspacePermissionsConstant); mkdirError != nil {
			return "", nil, mkdirError
		}
		return runWorkspace, func() {}, nil
	}

	workspace, tempError := afero.TempDir(orchestrator.filesystem, "", workspacePrefixConstant)
	if tempError != nil {
		return "", nil, tempError
	}
	if options.KeepWorkspace {
		return workspace, func() {
			logger.Info(keptWorkspaceMessageConstant, zap.String(logFieldWorkspaceConstant, workspace))
		}, nil
	}
	return workspace, func() {
		if removeError := orchestrator.filesystem.RemoveAll(workspace); removeError != nil {
			logger.Warn(removeWorkspaceWarningConstant, zap.String(logFieldWorkspaceConstant, workspace), zap.Error(removeError))
		}
	}, nil
}

// releaseRepositories runs the machine per remote. Results keep the order of
// remotes regardless of concurrency.
func (orchestrator *Orchestrator) releaseRepositories(executionContext context.Context, options Options, workspace string, remotes []string, logger *zap.Logger) []RepositoryResult {
	results := make([]RepositoryResult, len(remotes))
	directories := repositoryDirectories(workspace, remotes)

	concurrency := options.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	group := errgroup.Group{}
	group.SetLimit(concurrency)
	for remoteIndex, remote := range remotes {
		group.Go(func() error {
			handle := repostate.Handle{
				Remote:     remote,
				Path:       directories[remoteIndex],
				OSVersion:  options.OSVersion,
				ESRVersion: options.ESRVersion,
				Token:      options.Token,
			}
			results[remoteIndex] = orchestrator.releaseRepository(executionContext, handle, logger.With(zap.String(logFieldRepositoryConstant, gitrepo.RepositoryName(remote))))
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (orchestrator *Orchestrator) releaseRepository(executionContext context.Context, handle repostate.Handle, logger *zap.Logger) RepositoryResult {
	repository, factoryError := orchestrator.repositoryFactory(handle, logger)
	if factoryError != nil {
		logger.Error(repositoryFactoryFailedMessage, zap.Error(factoryError))
		return RepositoryResult{
			Remote:      handle.Remote,
			Path:        handle.Path,
			Status:      StatusFailed,
			State:       StateDiscovered,
			Transitions: []State{StateDiscovered, StateFailed},
			Err:         esr.RepositoryError{Remote: handle.Remote, State: string(StateDiscovered), Cause: factoryError},
		}
	}
	return orchestrator.machine.Run(executionContext, repository, logger)
}

// repositoryDirectories assigns each remote a private directory under
// workspace, suffixing repeated names.
func repositoryDirectories(workspace string, remotes []string) []string {
	directories := make([]string, len(remotes))
	occurrences := make(map[string]int, len(remotes))
	for remoteIndex, remote := range remotes {
		name := gitrepo.RepositoryName(remote)
		occurrences[name]++
		if occurrences[name] > 1 {
			name = name + duplicateNameSeparatorConstant + strconv.Itoa(occurrences[name])
		}
		directories[remoteIndex] = filepath.Join(workspace, name)
	}
	return directories
}

func (orchestrator *Orchestrator) aggregateDevices(results []RepositoryResult, logger *zap.Logger) map[string]string {
	released := make(map[string]string)
	for _, result := range results {
		if result.Status == StatusFailed {
			continue
		}
		for _, device := range result.Devices {
			if previousTag, duplicate := released[device]; duplicate && previousTag != result.ReleaseTag {
				logger.Warn(duplicateDeviceWarningConstant, zap.String(logFieldDeviceConstant, device), zap.String(logFieldPreviousTagConstant, previousTag), zap.String(logFieldTagConstant, result.ReleaseTag))
			}
			released[device] = result.ReleaseTag
		}
	}
	return released
}

func (orchestrator *Orchestrator) logClassification(classification fleet.Classification, logger *zap.Logger) {
	if len(classification.Deprecated) > 0 {
		logger.Warn(deprecatedDevicesWarningConstant, zap.Strings(logFieldDevicesConstant, classification.Deprecated))
	}
	if len(classification.Missing) > 0 {
		logger.Warn(missingDevicesWarningConstant, zap.Strings(logFieldDevicesConstant, classification.Missing))
		return
	}
	logger.Info(allDevicesReleasedMessageConstant)
}

func (orchestrator *Orchestrator) triggerDeploys(executionContext context.Context, options Options, classification fleet.Classification, logger *zap.Logger) []DeployResult {
	if !orchestrator.catalog.DeployConfigured() {
		return nil
	}
	devices := make([]string, 0, len(classification.Current))
	for device := range classification.Current {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	deploys := make([]DeployResult, 0, len(devices))
	for _, device := range devices {
		tag := classification.Current[device]
		deployLogger := logger.With(zap.String(logFieldDeviceConstant, device), zap.String(logFieldTagConstant, tag), zap.String(logFieldEnvironmentConstant, options.DeployEnvironment))
		if options.DryRun {
			deployLogger.Info(deploySkippedDryRunMessage)
			deploys = append(deploys, DeployResult{Device: device, Tag: tag, Skipped: true})
			continue
		}
		deployLogger.Info(deployingMessageConstant)
		deployError := orchestrator.catalog.TriggerDeploy(executionContext, device, tag, options.DeployEnvironment)
		if deployError != nil {
			deployLogger.Warn(deployFailedWarningConstant, zap.Error(deployError))
		}
		deploys = append(deploys, DeployResult{Device: device, Tag: tag, Err: deployError})
	}
	return deploys
}
