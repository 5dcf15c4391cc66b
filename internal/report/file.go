package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Format names a report file encoding.
type Format string

// Supported report file encodings.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

const (
	jsonIndentConstant                = "  "
	yamlIndentConstant                = 2
	reportDirectoryPermissions        = 0o755
	ymlAliasConstant                  = "yml"
	unsupportedFormatTemplateConstant = "unsupported report format %q"
	encodeReportErrorTemplateConstant = "encode %s report: %w"
	writeReportErrorTemplateConstant  = "write report %s: %w"
)

// ErrFilesystemNotConfigured indicates a report file cannot be written.
var ErrFilesystemNotConfigured = errors.New("report filesystem not configured")

// UnsupportedFormatError indicates an unknown report encoding.
type UnsupportedFormatError struct {
	Value string
}

// Error names the rejected format.
func (formatError UnsupportedFormatError) Error() string {
	return fmt.Sprintf(unsupportedFormatTemplateConstant, formatError.Value)
}

// ParseFormat resolves a configured format name. An empty value derives the
// format from the extension of path.
func ParseFormat(value string, path string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if len(normalized) == 0 {
		normalized = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch normalized {
	case string(FormatJSON), string(FormatYAML), string(FormatTOML):
		return Format(normalized), nil
	case ymlAliasConstant:
		return FormatYAML, nil
	default:
		return "", UnsupportedFormatError{Value: normalized}
	}
}

// Encode writes document to writer in format.
func Encode(writer io.Writer, format Format, document Document) error {
	var encodeError error
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		encodeError = encoder.Encode(document)
	case FormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(yamlIndentConstant)
		encodeError = encoder.Encode(document)
		if encodeError == nil {
			encodeError = encoder.Close()
		}
	case FormatTOML:
		encodeError = toml.NewEncoder(writer).Encode(document)
	default:
		return UnsupportedFormatError{Value: string(format)}
	}
	if encodeError != nil {
		return fmt.Errorf(encodeReportErrorTemplateConstant, format, encodeError)
	}
	return nil
}

// WriteFile encodes document into path on filesystem, creating parent
// directories.
func WriteFile(filesystem afero.Fs, path string, format Format, document Document) error {
	if filesystem == nil {
		return ErrFilesystemNotConfigured
	}
	if mkdirError := filesystem.MkdirAll(filepath.Dir(path), reportDirectoryPermissions); mkdirError != nil {
		return fmt.Errorf(writeReportErrorTemplateConstant, path, mkdirError)
	}
	file, createError := filesystem.Create(path)
	if createError != nil {
		return fmt.Errorf(writeReportErrorTemplateConstant, path, createError)
	}
	encodeError := Encode(file, format, document)
	closeError := file.Close()
	if encodeError != nil {
		return encodeError
	}
	if closeError != nil {
		return fmt.Errorf(writeReportErrorTemplateConstant, path, closeError)
	}
	return nil
}
