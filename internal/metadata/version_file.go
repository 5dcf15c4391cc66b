package metadata

import (
	"fmt"
	"regexp"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	versionPreImagePatternConstant        = `^(\d+\.\d+\.\d+\+rev\d+)\n?$`
	versionPreImageMismatchReasonConstant = "expected a single version line matching %s"
	readVersionErrorTemplateConstant      = "read %s: %w"
	writeVersionErrorTemplateConstant     = "write %s: %w"
)

var versionPreImageExpression = regexp.MustCompile(versionPreImagePatternConstant)

// SetVersionFile rewrites the VERSION file at path, which must hold exactly one
// <major>.<minor>.<patch>+rev<N> line, to <esrVersion>.0. A trailing newline is
// kept.
func (mutator *Mutator) SetVersionFile(path string, esrVersion string) error {
	if validationError := esr.ValidateESRVersion(esrVersion); validationError != nil {
		return validationError
	}

	contents, fileMode, readError := mutator.readFile(path)
	if readError != nil {
		return fmt.Errorf(readVersionErrorTemplateConstant, path, readError)
	}

	match := versionPreImageExpression.FindSubmatchIndex(contents)
	if match == nil {
		return esr.SchemaError{Path: path, Reason: fmt.Sprintf(versionPreImageMismatchReasonConstant, versionPreImagePatternConstant)}
	}

	replacement := []byte(esr.ESRVersion(esrVersion).ReleaseVersion())
	updated := make([]byte, 0, len(contents)-(match[3]-match[2])+len(replacement))
	updated = append(updated, replacement...)
	updated = append(updated, contents[match[3]:]...)

	if writeError := mutator.writeFile(path, updated, fileMode); writeError != nil {
		return fmt.Errorf(writeVersionErrorTemplateConstant, path, writeError)
	}
	return nil
}
