package release

import (
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	// DefaultOrganization is the GitHub organization holding device repositories.
	DefaultOrganization = "balena-os"
	// DefaultDeployEnvironment is the deploy target when none is configured.
	DefaultDeployEnvironment = "staging"
	// DefaultConcurrency processes repositories one at a time.
	DefaultConcurrency = 1

	concurrencyFieldNameConstant  = "concurrency"
	organizationFieldNameConstant = "organization"
	positiveValuePatternConstant  = ">= 1"
	requiredValuePatternConstant  = "value required"
)

// Options is the validated configuration of one fleet run.
type Options struct {
	ESRVersion            esr.ESRVersion
	OSVersion             esr.OSVersion
	Organization          string
	Repositories          []string
	Workspace             string
	KeepWorkspace         bool
	Concurrency           int
	DryRun                bool
	FailOnRepositoryError bool
	DeployEnvironment     string
	RunID                 string
	Token                 string
}

// NewOptions validates raw values and returns normalized Options. Every
// invalid field is reported.
func NewOptions(esrVersion string, osVersion string, options Options) (Options, error) {
	var validationErrors error

	parsedESRVersion, esrError := esr.ParseESRVersion(esrVersion)
	validationErrors = multierr.Append(validationErrors, esrError)
	parsedOSVersion, osError := esr.ParseOSVersion(osVersion)
	validationErrors = multierr.Append(validationErrors, osError)

	options.ESRVersion = parsedESRVersion
	options.OSVersion = parsedOSVersion
	options.Organization = strings.TrimSpace(options.Organization)
	if len(options.Organization) == 0 && len(options.Repositories) == 0 {
		validationErrors = multierr.Append(validationErrors, esr.ValidationError{Field: organizationFieldNameConstant, Value: options.Organization, Pattern: requiredValuePatternConstant})
	}
	if options.Concurrency == 0 {
		options.Concurrency = DefaultConcurrency
	}
	if options.Concurrency < 0 {
		validationErrors = multierr.Append(validationErrors, esr.ValidationError{Field: concurrencyFieldNameConstant, Value: strconv.Itoa(options.Concurrency), Pattern: positiveValuePatternConstant})
	}
	if len(strings.TrimSpace(options.DeployEnvironment)) == 0 {
		options.DeployEnvironment = DefaultDeployEnvironment
	}
	options.Repositories = normalizeRepositories(options.Repositories)

	if validationErrors != nil {
		return Options{}, validationErrors
	}
	return options, nil
}

func normalizeRepositories(repositories []string) []string {
	normalized := make([]string, 0, len(repositories))
	seen := make(map[string]struct{}, len(repositories))
	for _, repository := range repositories {
		trimmed := strings.TrimSpace(repository)
		if len(trimmed) == 0 {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
