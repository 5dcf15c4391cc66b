package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	// DefaultGitHubAPIURL is the GitHub REST endpoint.
	DefaultGitHubAPIURL = "https://api.github.com"
	// DefaultCloudAPIURL is the device-type catalog endpoint.
	DefaultCloudAPIURL = "https://api.balena-cloud.com"
	// DefaultJenkinsURL is the deploy job server.
	DefaultJenkinsURL = "https://jenkins.dev.resin.io"
	// DefaultJenkinsJob is the ESR deploy job.
	DefaultJenkinsJob = "balenaOS-deploy-ESR"
	// DefaultHomepagePattern marks device repositories by their homepage.
	DefaultHomepagePattern = "balena.io/os"
	// DefaultNamePattern marks device repositories by their full name.
	DefaultNamePattern = "balena-os/balena-"
	// DefaultHTTPTimeout bounds every HTTP request.
	DefaultHTTPTimeout = 2 * time.Minute

	httpStatusErrorTemplateConstant = "%s %s returned %d: %s"
	requestErrorTemplateConstant    = "build request %s: %w"
	transportErrorTemplateConstant  = "%s %s: %w"
	decodeErrorTemplateConstant     = "decode %s: %w"
	errorBodyLimitConstant          = 512
	authenticationOperationTemplate = "%s %s"
	urlPathSeparatorConstant        = "/"
)

// URLField selects which clone URL discovery returns.
type URLField string

// Supported clone URL fields.
const (
	URLFieldSSH   URLField = URLField("ssh")
	URLFieldHTTPS URLField = URLField("https")
)

// CatalogOptions configures the remote services.
type CatalogOptions struct {
	GitHubAPIURL      string
	GitHubToken       string
	CloudAPIURL       string
	CloudToken        string
	JenkinsURL        string
	JenkinsJob        string
	JenkinsUser       string
	JenkinsToken      string
	HomepagePattern   string
	NamePattern       string
	URLField          URLField
	DeviceAliases     map[string]string
	HTTPTimeout       time.Duration
	BaseHTTPTransport http.RoundTripper
}

// HTTPStatusError reports a non-success HTTP response.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error describes the failed response.
func (statusError HTTPStatusError) Error() string {
	return fmt.Sprintf(httpStatusErrorTemplateConstant, statusError.Method, statusError.URL, statusError.StatusCode, statusError.Body)
}

// Catalog implements discovery, the device-type catalog and deploy triggers.
type Catalog struct {
	options       CatalogOptions
	logger        *zap.Logger
	githubClient  *http.Client
	cloudClient   *http.Client
	deployClient  *http.Client
	deviceAliases map[string]string
}

// NewCatalog normalizes options and builds the HTTP clients. Bearer tokens are
// attached through oauth2 static token sources.
func NewCatalog(options CatalogOptions, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.GitHubAPIURL = defaultURL(options.GitHubAPIURL, DefaultGitHubAPIURL)
	options.CloudAPIURL = defaultURL(options.CloudAPIURL, DefaultCloudAPIURL)
	options.JenkinsURL = defaultURL(options.JenkinsURL, DefaultJenkinsURL)
	options.JenkinsJob = defaultString(options.JenkinsJob, DefaultJenkinsJob)
	options.HomepagePattern = defaultString(options.HomepagePattern, DefaultHomepagePattern)
	options.NamePattern = defaultString(options.NamePattern, DefaultNamePattern)
	if options.URLField != URLFieldHTTPS {
		options.URLField = URLFieldSSH
	}
	if options.HTTPTimeout <= 0 {
		options.HTTPTimeout = DefaultHTTPTimeout
	}

	deviceAliases := DefaultDeviceAliases()
	for device, board := range options.DeviceAliases {
		deviceAliases[device] = board
	}

	return &Catalog{
		options:       options,
		logger:        logger,
		githubClient:  newHTTPClient(options.GitHubToken, options.HTTPTimeout, options.BaseHTTPTransport),
		cloudClient:   newHTTPClient(options.CloudToken, options.HTTPTimeout, options.BaseHTTPTransport),
		deployClient:  newHTTPClient("", options.HTTPTimeout, options.BaseHTTPTransport),
		deviceAliases: deviceAliases,
	}
}

// CanonicalComplete reports whether the catalog sees private device types,
// which requires a cloud token.
func (catalog *Catalog) CanonicalComplete() bool {
	return len(strings.TrimSpace(catalog.options.CloudToken)) > 0
}

// DeployConfigured reports whether deploy credentials are present.
func (catalog *Catalog) DeployConfigured() bool {
	return len(strings.TrimSpace(catalog.options.JenkinsUser)) > 0 && len(strings.TrimSpace(catalog.options.JenkinsToken)) > 0
}

func newHTTPClient(token string, timeout time.Duration, baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	trimmedToken := strings.TrimSpace(token)
	if len(trimmedToken) == 0 {
		return &http.Client{Transport: baseTransport, Timeout: timeout}
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: trimmedToken, TokenType: "Bearer"}),
			Base:   baseTransport,
		},
		Timeout: timeout,
	}
}

func (catalog *Catalog) getJSON(executionContext context.Context, client *http.Client, requestURL string, headers map[string]string, target any) error {
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
	if requestError != nil {
		return fmt.Errorf(requestErrorTemplateConstant, requestURL, requestError)
	}
	for headerName, headerValue := range headers {
		request.Header.Set(headerName, headerValue)
	}

	response, responseError := client.Do(request)
	if responseError != nil {
		return fmt.Errorf(transportErrorTemplateConstant, http.MethodGet, requestURL, responseError)
	}
	defer response.Body.Close()

	if statusError := checkStatus(request, response); statusError != nil {
		return statusError
	}
	if decodeError := json.NewDecoder(response.Body).Decode(target); decodeError != nil {
		return fmt.Errorf(decodeErrorTemplateConstant, requestURL, decodeError)
	}
	return nil
}

// checkStatus turns non-2xx responses into errors; 401 and 403 become
// esr.AuthError.
func checkStatus(request *http.Request, response *http.Response) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(response.Body, errorBodyLimitConstant))
	statusError := HTTPStatusError{
		Method:     request.Method,
		URL:        request.URL.Redacted(),
		StatusCode: response.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		return esr.AuthError{Operation: fmt.Sprintf(authenticationOperationTemplate, request.Method, request.URL.Redacted()), Cause: statusError}
	}
	return statusError
}

func defaultString(value string, fallback string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallback
	}
	return trimmedValue
}

func defaultURL(value string, fallback string) string {
	return strings.TrimRight(defaultString(value, fallback), urlPathSeparatorConstant)
}
