package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/temirov/esrctl/internal/execshell"
)

const (
	// DefaultDeviceTypeScript generates one JSON file per device type at the repository root.
	DefaultDeviceTypeScript = "balena-yocto-scripts/build/build-device-type-json.sh"

	deviceTypeFileExtension      = ".json"
	slugFieldName                = "slug"
	readDirectoryErrorTemplate   = "list %s: %w"
	readDeviceTypeErrorTemplate  = "read %s: %w"
	logFieldScript               = "script"
	logFieldFile                 = "file"
	scriptMissingMessage         = "Device type generator not present, reading existing files"
	scriptFailedMessage          = "Device type generator failed, reading existing files"
	skippedDeviceTypeFileMessage = "Skipping JSON file without a device slug"
	collectedDeviceTypesMessage  = "Collected device types"
	logFieldDeviceTypes          = "device_types"
	invalidDeviceTypeJSONMessage = "Skipping malformed JSON file"
)

var (
	// ErrShellExecutorNotConfigured indicates the collector lacks a script executor.
	ErrShellExecutorNotConfigured = errors.New("device type collector shell executor not configured")
	// ErrCollectorFilesystemNotConfigured indicates the collector lacks a filesystem.
	ErrCollectorFilesystemNotConfigured = errors.New("device type collector filesystem not configured")
)

// ShellScriptExecutor runs shell scripts.
type ShellScriptExecutor interface {
	ExecuteShellScript(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// DeviceTypeCollector reads the device types a repository builds.
type DeviceTypeCollector struct {
	executor   ShellScriptExecutor
	filesystem afero.Fs
	scriptPath string
	logger     *zap.Logger
}

// NewDeviceTypeCollector validates dependencies and constructs a collector.
// scriptPath is relative to the repository root.
func NewDeviceTypeCollector(executor ShellScriptExecutor, filesystem afero.Fs, scriptPath string, logger *zap.Logger) (*DeviceTypeCollector, error) {
	if executor == nil {
		return nil, ErrShellExecutorNotConfigured
	}
	if filesystem == nil {
		return nil, ErrCollectorFilesystemNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strings.TrimSpace(scriptPath)) == 0 {
		scriptPath = DefaultDeviceTypeScript
	}
	return &DeviceTypeCollector{executor: executor, filesystem: filesystem, scriptPath: scriptPath, logger: logger}, nil
}

// Collect runs the generator script when present and returns the sorted,
// unique slugs of the *.json files at repositoryPath.
func (collector *DeviceTypeCollector) Collect(executionContext context.Context, repositoryPath string) ([]string, error) {
	collector.generate(executionContext, repositoryPath)

	entries, readError := afero.ReadDir(collector.filesystem, repositoryPath)
	if readError != nil {
		return nil, fmt.Errorf(readDirectoryErrorTemplate, repositoryPath, readError)
	}

	slugSet := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), deviceTypeFileExtension) {
			continue
		}
		filePath := filepath.Join(repositoryPath, entry.Name())
		slug, slugError := collector.readSlug(filePath)
		if slugError != nil {
			return nil, slugError
		}
		if len(slug) == 0 {
			collector.logger.Debug(skippedDeviceTypeFileMessage, zap.String(logFieldFile, filePath))
			continue
		}
		slugSet[slug] = struct{}{}
	}

	slugs := make([]string, 0, len(slugSet))
	for slug := range slugSet {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	collector.logger.Debug(collectedDeviceTypesMessage, zap.Strings(logFieldDeviceTypes, slugs))
	return slugs, nil
}

func (collector *DeviceTypeCollector) generate(executionContext context.Context, repositoryPath string) {
	scriptPath := filepath.Join(repositoryPath, collector.scriptPath)
	scriptExists, _ := afero.Exists(collector.filesystem, scriptPath)
	if !scriptExists {
		collector.logger.Debug(scriptMissingMessage, zap.String(logFieldScript, scriptPath))
		return
	}
	_, executionError := collector.executor.ExecuteShellScript(executionContext, execshell.CommandDetails{
		Arguments:        []string{scriptPath},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		collector.logger.Warn(scriptFailedMessage, zap.String(logFieldScript, scriptPath), zap.Error(executionError))
	}
}

// readSlug returns the slug field of a JSON object file, or "" when the file
// holds no usable slug.
func (collector *DeviceTypeCollector) readSlug(filePath string) (string, error) {
	contents, readError := afero.ReadFile(collector.filesystem, filePath)
	if readError != nil {
		return "", fmt.Errorf(readDeviceTypeErrorTemplate, filePath, readError)
	}
	var document any
	if decodeError := json.Unmarshal(contents, &document); decodeError != nil {
		collector.logger.Warn(invalidDeviceTypeJSONMessage, zap.String(logFieldFile, filePath), zap.Error(decodeError))
		return "", nil
	}
	fields, isObject := document.(map[string]any)
	if !isObject {
		return "", nil
	}
	return strings.TrimSpace(cast.ToString(fields[slugFieldName])), nil
}
