package fleet

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	organizationReposPathTemplate = "%s/orgs/%s/repos"
	repositoryTypeQueryName       = "type"
	repositoryTypeAllValue        = "all"
	perPageQueryName              = "per_page"
	pageQueryName                 = "page"
	discoveryPageSize             = 100
	acceptHeaderName              = "Accept"
	githubAcceptHeaderValue       = "application/vnd.github.v3+json"
	discoverPageErrorTemplate     = "list repositories of %s (page %d): %w"
	logFieldOrganization          = "organization"
	logFieldPage                  = "page"
	logFieldRemote                = "remote"
	discoveredRepositoryMessage   = "Discovered device repository"
	fetchedPageMessage            = "Fetched repository page"
)

type githubRepository struct {
	FullName string  `json:"full_name"`
	Homepage *string `json:"homepage"`
	SSHURL   string  `json:"ssh_url"`
	CloneURL string  `json:"clone_url"`
}

// DiscoverRepositories pages through the organization's repositories and
// returns the clone URLs of device repositories in listing order.
func (catalog *Catalog) DiscoverRepositories(executionContext context.Context, organization string) ([]string, error) {
	remotes := make([]string, 0)
	for page := 1; ; page++ {
		requestURL := catalog.organizationPageURL(organization, page)
		var repositories []githubRepository
		if fetchError := catalog.getJSON(executionContext, catalog.githubClient, requestURL, map[string]string{acceptHeaderName: githubAcceptHeaderValue}, &repositories); fetchError != nil {
			return nil, fmt.Errorf(discoverPageErrorTemplate, organization, page, fetchError)
		}
		catalog.logger.Debug(fetchedPageMessage, zap.String(logFieldOrganization, organization), zap.Int(logFieldPage, page))
		if len(repositories) == 0 {
			break
		}
		for _, repository := range repositories {
			if !catalog.isDeviceRepository(repository) {
				continue
			}
			remote := repository.SSHURL
			if catalog.options.URLField == URLFieldHTTPS {
				remote = repository.CloneURL
			}
			catalog.logger.Debug(discoveredRepositoryMessage, zap.String(logFieldRemote, remote))
			remotes = append(remotes, remote)
		}
	}
	return remotes, nil
}

func (catalog *Catalog) isDeviceRepository(repository githubRepository) bool {
	if repository.Homepage == nil || !strings.Contains(*repository.Homepage, catalog.options.HomepagePattern) {
		return false
	}
	return strings.Contains(repository.FullName, catalog.options.NamePattern)
}

func (catalog *Catalog) organizationPageURL(organization string, page int) string {
	query := url.Values{}
	query.Set(repositoryTypeQueryName, repositoryTypeAllValue)
	query.Set(perPageQueryName, strconv.Itoa(discoveryPageSize))
	query.Set(pageQueryName, strconv.Itoa(page))
	return fmt.Sprintf(organizationReposPathTemplate, catalog.options.GitHubAPIURL, url.PathEscape(organization)) + "?" + query.Encode()
}
