package fleet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	buildWithParametersTemplate = "%s/job/%s/buildWithParameters"
	boardFormField              = "board"
	tagFormField                = "tag"
	deployToFormField           = "deployTo"
	contentTypeHeaderName       = "Content-Type"
	formContentType             = "application/x-www-form-urlencoded"
	deployRequestErrorTemplate  = "trigger deploy of %s: %w"
	logFieldBoard               = "board"
	logFieldTag                 = "tag"
	logFieldEnvironment         = "environment"
	deployTriggeredMessage      = "Triggered deploy job"
)

// ErrDeployNotConfigured indicates deploy credentials are missing.
var ErrDeployNotConfigured = errors.New("deploy credentials not configured")

// TriggerDeploy queues the deploy job for device at tag, resolving the device
// to its board name.
func (catalog *Catalog) TriggerDeploy(executionContext context.Context, device string, tag string, environment string) error {
	if !catalog.DeployConfigured() {
		return ErrDeployNotConfigured
	}
	board := catalog.ResolveAlias(device)
	form := url.Values{}
	form.Set(boardFormField, board)
	form.Set(tagFormField, tag)
	form.Set(deployToFormField, environment)

	requestURL := fmt.Sprintf(buildWithParametersTemplate, catalog.options.JenkinsURL, url.PathEscape(catalog.options.JenkinsJob))
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if requestError != nil {
		return fmt.Errorf(deployRequestErrorTemplate, device, requestError)
	}
	request.Header.Set(contentTypeHeaderName, formContentType)
	request.SetBasicAuth(catalog.options.JenkinsUser, catalog.options.JenkinsToken)

	response, responseError := catalog.deployClient.Do(request)
	if responseError != nil {
		return fmt.Errorf(deployRequestErrorTemplate, device, responseError)
	}
	defer response.Body.Close()
	if statusError := checkStatus(request, response); statusError != nil {
		return fmt.Errorf(deployRequestErrorTemplate, device, statusError)
	}

	catalog.logger.Info(deployTriggeredMessage, zap.String(logFieldBoard, board), zap.String(logFieldTag, tag), zap.String(logFieldEnvironment, environment))
	return nil
}
