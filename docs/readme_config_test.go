package docs_test

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/esrctl/cmd/cli"
	"github.com/temirov/esrctl/internal/utils"
)

const (
	readmeFileNameConstant           = "README.md"
	yamlFenceStartConstant           = "```yaml"
	yamlFenceEndConstant             = "```"
	configHeaderMarkerConstant       = "# config.yaml"
	readmeSnippetFileNameConstant    = "config.yaml"
	parentDirectoryReferenceConstant = ".."
	keySeparatorConstant             = "."
	missingHeaderMessageConstant     = "README example missing config header marker"
	missingStartFenceMessageConstant = "README example missing yaml fence start"
	missingEndFenceMessageConstant   = "README example missing yaml fence end"
)

func readmeConfigurationSnippet(testInstance *testing.T) string {
	testInstance.Helper()
	contentBytes, readError := os.ReadFile(filepath.Join(parentDirectoryReferenceConstant, readmeFileNameConstant))
	require.NoError(testInstance, readError)

	contentText := string(contentBytes)
	headerIndex := strings.Index(contentText, configHeaderMarkerConstant)
	require.NotEqual(testInstance, -1, headerIndex, missingHeaderMessageConstant)

	fenceStartIndex := strings.LastIndex(contentText[:headerIndex], yamlFenceStartConstant)
	require.NotEqual(testInstance, -1, fenceStartIndex, missingStartFenceMessageConstant)

	fenceEndRelativeIndex := strings.Index(contentText[headerIndex:], yamlFenceEndConstant)
	require.NotEqual(testInstance, -1, fenceEndRelativeIndex, missingEndFenceMessageConstant)

	return strings.TrimSpace(contentText[fenceStartIndex+len(yamlFenceStartConstant) : headerIndex+fenceEndRelativeIndex])
}

// flattenKeys lists the dotted paths of every leaf mapping key.
func flattenKeys(prefix string, node map[string]any) []string {
	keys := make([]string, 0, len(node))
	for key, value := range node {
		path := key
		if len(prefix) > 0 {
			path = prefix + keySeparatorConstant + key
		}
		if nested, isMapping := value.(map[string]any); isMapping && path != "release.device_aliases" {
			keys = append(keys, flattenKeys(path, nested)...)
			continue
		}
		keys = append(keys, path)
	}
	sort.Strings(keys)
	return keys
}

func TestReadmeConfigurationUsesKnownKeys(testInstance *testing.T) {
	snippet := readmeConfigurationSnippet(testInstance)
	defaultContent, _ := cli.EmbeddedDefaultConfiguration()

	var snippetDocument map[string]any
	require.NoError(testInstance, yaml.Unmarshal([]byte(snippet), &snippetDocument))
	var defaultDocument map[string]any
	require.NoError(testInstance, yaml.Unmarshal(defaultContent, &defaultDocument))

	knownKeys := flattenKeys("", defaultDocument)
	for _, snippetKey := range flattenKeys("", snippetDocument) {
		require.Contains(testInstance, knownKeys, snippetKey)
	}
}

func TestReadmeConfigurationLoads(testInstance *testing.T) {
	configurationPath := filepath.Join(testInstance.TempDir(), readmeSnippetFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(readmeConfigurationSnippet(testInstance)), 0o600))

	loader := utils.NewConfigurationLoader("config", "yaml", "ESRCTL_DOCS_TEST", nil)
	loader.SetEmbeddedConfiguration(cli.EmbeddedDefaultConfiguration())

	var configuration cli.ApplicationConfiguration
	_, loadError := loader.LoadConfiguration(configurationPath, nil, &configuration)
	require.NoError(testInstance, loadError)

	require.Equal(testInstance, 90*time.Second, configuration.HTTP.Timeout)
	require.Equal(testInstance, 4, configuration.Release.Concurrency)
	require.Equal(testInstance, cli.RemoteListerNative, configuration.Release.RemoteLister)
	require.Equal(testInstance, []string{"url = https://github.com/balena-os/meta-balena.git"}, configuration.Release.SubmoduleTargets)
	require.Equal(testInstance, "genericx86-64", configuration.Release.DeviceAliases["intel-nuc"])
	require.Equal(testInstance, "production", configuration.Jenkins.Environment)
}
