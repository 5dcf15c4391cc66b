package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/metadata"
	"github.com/temirov/esrctl/internal/repostate"
)

const (
	declareCommitMessageTemplate     = "Declare ESR %s"
	headReferenceConstant            = "HEAD"
	unrecognizedRepositoryReason     = "not a recognized repository"
	logFieldStateConstant            = "state"
	logFieldTagConstant              = "tag"
	logFieldBranchConstant           = "branch"
	logFieldDevicesConstant          = "devices"
	logFieldOutcomeConstant          = "outcome"
	alreadyReleasedMessageConstant   = "ESR branch already exists, nothing to release"
	fallbackTagMessageConstant       = "No ESR tag found on existing branch, reporting the default release tag"
	metaAlreadyRecordedMessage       = "Meta-layer ESR record already present"
	deviceAlreadyRecordedMessage     = "ESR version already defined, VERSION and CHANGELOG left unchanged"
	repositoryReleasedMessage        = "Repository released"
	repositoryFailedMessage          = "Repository release failed"
	deviceTypeCollectionWarning      = "Device type collection failed"
	commitFinishedMessageConstant    = "Commit finished"
	tagFinishedMessageConstant       = "Tag finished"
	stateEnteredMessageConstant      = "Entered release state"
	resolveReleaseTagErrorTemplate   = "resolve ESR tag: %w"
	inspectMetaLayerErrorTemplate    = "inspect meta-layer: %w"
	recordMetaLayerErrorTemplate     = "record meta-layer ESR: %w"
	applyDeviceMetadataErrorTemplate = "apply device metadata: %w"
)

var (
	// ErrMetadataNotConfigured indicates the machine lacks a metadata mutator.
	ErrMetadataNotConfigured = errors.New("release metadata mutator not configured")
	// ErrTagResolverNotConfigured indicates the machine lacks a tag resolver.
	ErrTagResolverNotConfigured = errors.New("release tag resolver not configured")
	// ErrDeviceTypeCollectorNotConfigured indicates the machine lacks a device type collector.
	ErrDeviceTypeCollectorNotConfigured = errors.New("release device type collector not configured")
)

// RepositoryOperations is the git surface the machine drives.
type RepositoryOperations interface {
	Handle() repostate.Handle
	Directory(scope repostate.RepositoryScope) string
	Clone(executionContext context.Context) (string, error)
	BranchExists(executionContext context.Context, branch string) (bool, error)
	BranchOrCheckout(executionContext context.Context, scope repostate.RepositoryScope, name string) error
	Commit(executionContext context.Context, scope repostate.RepositoryScope, message string) (repostate.CommitOutcome, error)
	Push(executionContext context.Context, scope repostate.RepositoryScope, reference string) (repostate.PushOutcome, error)
	Tag(executionContext context.Context, scope repostate.RepositoryScope, version string, ref string, message string) (repostate.TagOutcome, error)
}

// MetadataOperations mutates release metadata files.
type MetadataOperations interface {
	Exists(path string) (bool, error)
	RecordESR(path string, osVersion *string, esrVersion string) (metadata.RecordOutcome, error)
	ApplyDeviceMetadata(root string, esrVersion string) (metadata.RecordOutcome, error)
}

// DeviceTypeCollector lists the device type slugs a repository builds.
type DeviceTypeCollector interface {
	Collect(executionContext context.Context, repositoryPath string) ([]string, error)
}

// RepositoryResult is the outcome of one repository.
type RepositoryResult struct {
	Remote      string
	Path        string
	Status      Status
	State       State
	Transitions []State
	BaseTag     string
	ReleaseTag  string
	Devices     []string
	Err         error
}

// MachineDependencies lists the collaborators of a Machine.
type MachineDependencies struct {
	Metadata            MetadataOperations
	TagResolver         repostate.TagResolver
	DeviceTypeCollector DeviceTypeCollector
}

// Machine runs the release state machine for one repository at a time.
type Machine struct {
	metadata            MetadataOperations
	tagResolver         repostate.TagResolver
	deviceTypeCollector DeviceTypeCollector
}

// NewMachine validates dependencies and constructs a Machine.
func NewMachine(dependencies MachineDependencies) (*Machine, error) {
	if dependencies.Metadata == nil {
		return nil, ErrMetadataNotConfigured
	}
	if dependencies.TagResolver == nil {
		return nil, ErrTagResolverNotConfigured
	}
	if dependencies.DeviceTypeCollector == nil {
		return nil, ErrDeviceTypeCollectorNotConfigured
	}
	return &Machine{
		metadata:            dependencies.Metadata,
		tagResolver:         dependencies.TagResolver,
		deviceTypeCollector: dependencies.DeviceTypeCollector,
	}, nil
}

// machineRun carries the mutable state of one repository run.
type machineRun struct {
	machine    *Machine
	repository RepositoryOperations
	handle     repostate.Handle
	logger     *zap.Logger
	trace      *transitionTrace
	result     RepositoryResult
}

// Run drives repository from DISCOVERED to a terminal state. Failures are
// captured in the result and never returned.
func (machine *Machine) Run(executionContext context.Context, repository RepositoryOperations, logger *zap.Logger) RepositoryResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	handle := repository.Handle()
	run := &machineRun{
		machine:    machine,
		repository: repository,
		handle:     handle,
		logger:     logger,
		trace:      newTransitionTrace(),
		result:     RepositoryResult{Remote: handle.Remote, Path: handle.Path},
	}

	if runError := run.execute(executionContext); runError != nil {
		failedState := run.trace.current()
		_ = run.trace.advance(StateFailed)
		run.result.Status = StatusFailed
		run.result.State = failedState
		run.result.Err = esr.RepositoryError{Remote: handle.Remote, State: string(failedState), Cause: runError}
		logger.Error(repositoryFailedMessage, zap.String(logFieldStateConstant, string(failedState)), zap.Error(runError))
	}
	run.result.Transitions = run.trace.snapshot()
	return run.result
}

func (run *machineRun) execute(executionContext context.Context) error {
	esrVersion := run.handle.ESRVersion
	osVersion := run.handle.OSVersion

	baseTag, cloneError := run.repository.Clone(executionContext)
	if cloneError != nil {
		return cloneError
	}
	run.result.BaseTag = baseTag
	if transitionError := run.advance(StateCloned); transitionError != nil {
		return transitionError
	}

	branchExists, branchError := run.repository.BranchExists(executionContext, esrVersion.BranchName())
	if branchError != nil {
		return branchError
	}
	if branchExists {
		return run.reportAlreadyReleased(executionContext)
	}
	if transitionError := run.advance(StateReleasing); transitionError != nil {
		return transitionError
	}

	metaRoot := run.repository.Directory(repostate.MetaLayerScope)
	metaRecordPath := filepath.Join(metaRoot, metadata.RepositoryFileName)
	metaRecordExists, inspectError := run.machine.metadata.Exists(metaRecordPath)
	if inspectError != nil {
		return fmt.Errorf(inspectMetaLayerErrorTemplate, inspectError)
	}
	if !metaRecordExists {
		return esr.SchemaError{Path: metaRecordPath, Reason: unrecognizedRepositoryReason}
	}
	if checkoutError := run.repository.BranchOrCheckout(executionContext, repostate.MetaLayerScope, osVersion.BranchName()); checkoutError != nil {
		return checkoutError
	}
	if transitionError := run.advance(StateMetaBranched); transitionError != nil {
		return transitionError
	}

	osVersionValue := osVersion.String()
	metaOutcome, recordError := run.machine.metadata.RecordESR(metaRecordPath, &osVersionValue, esrVersion.String())
	if recordError != nil {
		return fmt.Errorf(recordMetaLayerErrorTemplate, recordError)
	}
	if metaOutcome == metadata.RecordAlreadyRecorded {
		run.logger.Info(metaAlreadyRecordedMessage, zap.String(logFieldBranchConstant, osVersion.BranchName()))
	}
	if transitionError := run.advance(StateMetaRecorded); transitionError != nil {
		return transitionError
	}

	if checkoutError := run.repository.BranchOrCheckout(executionContext, repostate.DeviceScope, esrVersion.BranchName()); checkoutError != nil {
		return checkoutError
	}
	if transitionError := run.advance(StateDeviceBranched); transitionError != nil {
		return transitionError
	}

	deviceOutcome, applyError := run.machine.metadata.ApplyDeviceMetadata(run.repository.Directory(repostate.DeviceScope), esrVersion.String())
	if applyError != nil {
		return fmt.Errorf(applyDeviceMetadataErrorTemplate, applyError)
	}
	if deviceOutcome == metadata.RecordAlreadyRecorded {
		run.logger.Warn(deviceAlreadyRecordedMessage)
	}
	if transitionError := run.advance(StateMetadataApplied); transitionError != nil {
		return transitionError
	}

	metaCommitOutcome, metaCommitError := run.repository.Commit(executionContext, repostate.MetaLayerScope, fmt.Sprintf(declareCommitMessageTemplate, osVersion))
	if metaCommitError != nil {
		return metaCommitError
	}
	run.logger.Debug(commitFinishedMessageConstant, zap.Stringer(logFieldOutcomeConstant, metaCommitOutcome))
	if transitionError := run.advance(StateMetaCommitted); transitionError != nil {
		return transitionError
	}

	if _, pushError := run.repository.Push(executionContext, repostate.MetaLayerScope, osVersion.BranchName()); pushError != nil {
		return pushError
	}
	if transitionError := run.advance(StateMetaPushed); transitionError != nil {
		return transitionError
	}

	declareMessage := fmt.Sprintf(declareCommitMessageTemplate, esrVersion)
	deviceCommitOutcome, deviceCommitError := run.repository.Commit(executionContext, repostate.DeviceScope, declareMessage)
	if deviceCommitError != nil {
		return deviceCommitError
	}
	run.logger.Debug(commitFinishedMessageConstant, zap.Stringer(logFieldOutcomeConstant, deviceCommitOutcome))
	if transitionError := run.advance(StateDeviceCommitted); transitionError != nil {
		return transitionError
	}

	releaseTag := esrVersion.TagName()
	tagOutcome, tagError := run.repository.Tag(executionContext, repostate.DeviceScope, releaseTag, headReferenceConstant, declareMessage)
	if tagError != nil && !esr.IsAlreadyDone(tagError) {
		return tagError
	}
	run.logger.Debug(tagFinishedMessageConstant, zap.String(logFieldTagConstant, releaseTag), zap.Stringer(logFieldOutcomeConstant, tagOutcome))
	if transitionError := run.advance(StateTagged); transitionError != nil {
		return transitionError
	}

	if _, pushError := run.repository.Push(executionContext, repostate.DeviceScope, esrVersion.BranchName()); pushError != nil {
		return pushError
	}
	if _, pushError := run.repository.Push(executionContext, repostate.DeviceScope, releaseTag); pushError != nil {
		return pushError
	}
	if transitionError := run.advance(StateDevicePushed); transitionError != nil {
		return transitionError
	}

	devices := run.collectDeviceTypes(executionContext)
	run.result.ReleaseTag = releaseTag
	run.result.Devices = devices
	if transitionError := run.advance(StateDone); transitionError != nil {
		return transitionError
	}
	run.result.Status = StatusDone
	run.result.State = StateDone
	run.logger.Info(repositoryReleasedMessage, zap.String(logFieldTagConstant, releaseTag), zap.Strings(logFieldDevicesConstant, devices))
	return nil
}

// reportAlreadyReleased resolves the existing ESR tag without writing to the
// repository.
func (run *machineRun) reportAlreadyReleased(executionContext context.Context) error {
	esrVersion := run.handle.ESRVersion
	releaseTag, resolveError := run.machine.tagResolver.HighestTag(executionContext, run.handle.Remote, esrVersion.String())
	if resolveError != nil {
		if !esr.IsNotFound(resolveError) {
			return fmt.Errorf(resolveReleaseTagErrorTemplate, resolveError)
		}
		releaseTag = esrVersion.TagName()
		run.logger.Warn(fallbackTagMessageConstant, zap.String(logFieldTagConstant, releaseTag))
	}

	devices := run.collectDeviceTypes(executionContext)
	if transitionError := run.advance(StateAlreadyReleased); transitionError != nil {
		return transitionError
	}
	run.result.ReleaseTag = releaseTag
	run.result.Devices = devices
	run.result.Status = StatusAlreadyReleased
	run.result.State = StateAlreadyReleased
	run.logger.Info(alreadyReleasedMessageConstant, zap.String(logFieldBranchConstant, esrVersion.BranchName()), zap.String(logFieldTagConstant, releaseTag))
	return nil
}

// collectDeviceTypes logs collection failures and reports no devices.
func (run *machineRun) collectDeviceTypes(executionContext context.Context) []string {
	devices, collectError := run.machine.deviceTypeCollector.Collect(executionContext, run.repository.Directory(repostate.DeviceScope))
	if collectError != nil {
		run.logger.Warn(deviceTypeCollectionWarning, zap.Error(collectError))
		return nil
	}
	return devices
}

func (run *machineRun) advance(next State) error {
	if transitionError := run.trace.advance(next); transitionError != nil {
		return transitionError
	}
	run.logger.Debug(stateEnteredMessageConstant, zap.String(logFieldStateConstant, string(next)))
	return nil
}
