package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/execshell"
	"github.com/temirov/esrctl/internal/fleet"
	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/metadata"
	"github.com/temirov/esrctl/internal/release"
	"github.com/temirov/esrctl/internal/report"
	"github.com/temirov/esrctl/internal/repostate"
	"github.com/temirov/esrctl/internal/ui"
	"github.com/temirov/esrctl/internal/versions"
)

const (
	serviceErrorTemplateConstant    = "unable to build %s: %w"
	executorServiceNameConstant     = "command executor"
	listerServiceNameConstant       = "reference lister"
	resolverServiceNameConstant     = "version resolver"
	mutatorServiceNameConstant      = "metadata mutator"
	collectorServiceNameConstant    = "device type collector"
	machineServiceNameConstant      = "release machine"
	orchestratorServiceNameConstant = "release orchestrator"
	unsupportedRemoteListerTemplate = "unsupported remote lister %q"
)

// FleetRunner releases the fleet.
type FleetRunner interface {
	Run(executionContext context.Context, options release.Options) (release.FleetReport, error)
}

// RepositoryDiscoverer lists the device repositories of an organization.
type RepositoryDiscoverer interface {
	DiscoverRepositories(executionContext context.Context, organization string) ([]string, error)
}

// ServiceRequest carries what a ServiceFactory needs to build one run.
type ServiceRequest struct {
	Logger        *zap.Logger
	Configuration ApplicationConfiguration
	Credentials   Credentials
	Filesystem    afero.Fs
	DryRun        bool
}

// Services are the collaborators of one command run.
type Services struct {
	Runner     FleetRunner
	Discoverer RepositoryDiscoverer
	Metrics    *report.Metrics
}

// ServiceFactory builds the collaborators of one command run.
type ServiceFactory func(request ServiceRequest) (Services, error)

// NewDefaultServices wires git, the metadata mutator, the fleet catalog and
// the release orchestrator. Every executed command feeds the run metrics and
// the progress log.
func NewDefaultServices(request ServiceRequest) (Services, error) {
	logger := request.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	configuration := request.Configuration
	metrics := report.NewMetrics()

	executor, executorError := execshell.NewShellExecutor(
		logger,
		execshell.NewOSCommandRunner(),
		execshell.WithRedactedValues(request.Credentials.Values()...),
		execshell.WithCommandEventObserver(ui.CommandEventObservers{metrics, ui.NewProgressLogger(logger)}),
	)
	if executorError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, executorServiceNameConstant, executorError)
	}

	referenceLister, listerError := newReferenceLister(configuration.Release.RemoteLister, executor, request.Credentials.GitHubToken)
	if listerError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, listerServiceNameConstant, listerError)
	}
	tagResolver, resolverError := versions.NewResolver(referenceLister, logger)
	if resolverError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, resolverServiceNameConstant, resolverError)
	}
	mutator, mutatorError := metadata.NewMutator(request.Filesystem, metadata.SystemClock{})
	if mutatorError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, mutatorServiceNameConstant, mutatorError)
	}
	collector, collectorError := fleet.NewDeviceTypeCollector(executor, request.Filesystem, configuration.Release.DeviceTypeScript, logger)
	if collectorError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, collectorServiceNameConstant, collectorError)
	}

	catalog := fleet.NewCatalog(newCatalogOptions(configuration, request.Credentials), logger)

	machine, machineError := release.NewMachine(release.MachineDependencies{
		Metadata:            mutator,
		TagResolver:         tagResolver,
		DeviceTypeCollector: collector,
	})
	if machineError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, machineServiceNameConstant, machineError)
	}

	repositoryOptions := repostate.Options{
		MetaLayerPath:    configuration.Release.MetaLayerPath,
		RemoteName:       configuration.Release.RemoteName,
		SubmoduleTargets: configuration.Release.SubmoduleTargets,
		DryRun:           request.DryRun,
	}
	repositoryFactory := func(handle repostate.Handle, repositoryLogger *zap.Logger) (release.RepositoryOperations, error) {
		repository, repositoryError := repostate.New(handle, repositoryOptions, repostate.Dependencies{
			Logger:          repositoryLogger,
			GitExecutor:     executor,
			TagResolver:     tagResolver,
			ReferenceLister: referenceLister,
			Filesystem:      request.Filesystem,
		})
		if repositoryError != nil {
			return nil, repositoryError
		}
		return repository, nil
	}

	orchestrator, orchestratorError := release.NewOrchestrator(release.OrchestratorDependencies{
		Logger:            logger,
		Machine:           machine,
		RepositoryFactory: repositoryFactory,
		Catalog:           catalog,
		Filesystem:        request.Filesystem,
		Clock:             time.Now,
	})
	if orchestratorError != nil {
		return Services{}, fmt.Errorf(serviceErrorTemplateConstant, orchestratorServiceNameConstant, orchestratorError)
	}

	return Services{Runner: orchestrator, Discoverer: catalog, Metrics: metrics}, nil
}

func newReferenceLister(backend string, executor gitrepo.GitCommandExecutor, token string) (gitrepo.RemoteReferenceLister, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", RemoteListerShell:
		return gitrepo.NewShellReferenceLister(executor)
	case RemoteListerNative:
		return gitrepo.NewNativeReferenceLister(token), nil
	default:
		return nil, fmt.Errorf(unsupportedRemoteListerTemplate, backend)
	}
}

func newCatalogOptions(configuration ApplicationConfiguration, runCredentials Credentials) fleet.CatalogOptions {
	return fleet.CatalogOptions{
		GitHubAPIURL:    configuration.GitHub.APIURL,
		GitHubToken:     runCredentials.GitHubToken,
		CloudAPIURL:     configuration.Cloud.APIURL,
		CloudToken:      runCredentials.CloudToken,
		JenkinsURL:      configuration.Jenkins.URL,
		JenkinsJob:      configuration.Jenkins.Job,
		JenkinsUser:     configuration.Jenkins.User,
		JenkinsToken:    runCredentials.JenkinsToken,
		HomepagePattern: configuration.GitHub.HomepagePattern,
		NamePattern:     configuration.GitHub.NamePattern,
		URLField:        fleet.URLField(strings.ToLower(strings.TrimSpace(configuration.GitHub.URLField))),
		DeviceAliases:   configuration.Release.DeviceAliases,
		HTTPTimeout:     configuration.HTTP.Timeout,
	}
}
