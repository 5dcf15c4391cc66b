package cli

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/utils"
)

const (
	discoverCommandUseConstant       = "discover"
	discoverCommandShortConstant     = "List the device repositories a release would process"
	discoverCommandLongConstant      = "discover lists the repositories of the organization whose homepage and name mark them as balenaOS device repositories, in the order a release processes them."
	discoverNameHeaderConstant       = "REPOSITORY"
	discoverRemoteHeaderConstant     = "REMOTE"
	discoveredCountMessageConstant   = "Discovered device repositories"
	logFieldOrganizationConstant     = "organization"
	logFieldRepositoryCountConstant  = "count"
	discoverErrorTemplateConstant    = "unable to discover repositories: %w"
	discoverServicesTemplateConstant = "unable to prepare discovery: %w"
)

// DiscoverCommandBuilder assembles the discover command.
type DiscoverCommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	ConfigurationProvider func() ApplicationConfiguration
	CredentialsProvider   func() Credentials
	ServiceFactory        func() ServiceFactory
	FilesystemProvider    func() afero.Fs
}

// Build constructs the discover command.
func (builder *DiscoverCommandBuilder) Build() *cobra.Command {
	var organization string
	command := &cobra.Command{
		Use:   discoverCommandUseConstant,
		Short: discoverCommandShortConstant,
		Long:  discoverCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration := builder.ConfigurationProvider()
			if command.Flags().Changed(organizationFlagNameConstant) {
				configuration.GitHub.Organization = organization
			}
			return builder.run(command, configuration)
		},
	}
	command.Flags().StringVar(&organization, organizationFlagNameConstant, "", organizationFlagUsageConstant)
	return command
}

func (builder *DiscoverCommandBuilder) run(command *cobra.Command, configuration ApplicationConfiguration) error {
	logger := builder.LoggerProvider()
	services, servicesError := builder.ServiceFactory()(ServiceRequest{
		Logger:        logger,
		Configuration: configuration,
		Credentials:   builder.CredentialsProvider(),
		Filesystem:    builder.FilesystemProvider(),
		DryRun:        true,
	})
	if servicesError != nil {
		return fmt.Errorf(discoverServicesTemplateConstant, servicesError)
	}

	organization := strings.TrimSpace(configuration.GitHub.Organization)
	remotes, discoveryError := services.Discoverer.DiscoverRepositories(commandContext(command), organization)
	if discoveryError != nil {
		return fmt.Errorf(discoverErrorTemplateConstant, discoveryError)
	}
	logger.Info(discoveredCountMessageConstant, zap.String(logFieldOrganizationConstant, organization), zap.Int(logFieldRepositoryCountConstant, len(remotes)))

	table := uitable.New()
	table.AddRow(discoverNameHeaderConstant, discoverRemoteHeaderConstant)
	for _, remote := range remotes {
		table.AddRow(gitrepo.RepositoryName(remote), remote)
	}
	_, writeError := fmt.Fprintln(utils.NewFlushingWriter(command.OutOrStdout()), table)
	return writeError
}
