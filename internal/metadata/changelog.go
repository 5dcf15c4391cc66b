package metadata

import (
	"fmt"
	"strings"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	changelogHeaderLineCountConstant    = 2
	changelogDateLayoutConstant         = "2006-01-02"
	changelogEntryTemplateConstant      = "\n# %[1]s\n## (%[2]s)\n\n* Declare ESR %[1]s\n"
	changelogNotHeaderReasonConstant    = "first line is not a changelog header"
	changelogEmptyReasonConstant        = "file is empty"
	readChangelogErrorTemplateConstant  = "read %s: %w"
	writeChangelogErrorTemplateConstant = "write %s: %w"
	lineBreakConstant                   = "\n"
)

var changelogHeaderMarkers = []string{"change log", "changelog"}

// PrependChangelog inserts a dated "Declare ESR" entry right after the two
// header lines of the changelog at path, above every earlier entry.
func (mutator *Mutator) PrependChangelog(path string, esrVersion string) error {
	if validationError := esr.ValidateESRVersion(esrVersion); validationError != nil {
		return validationError
	}

	contents, fileMode, readError := mutator.readFile(path)
	if readError != nil {
		return fmt.Errorf(readChangelogErrorTemplateConstant, path, readError)
	}
	if len(contents) == 0 {
		return esr.SchemaError{Path: path, Reason: changelogEmptyReasonConstant}
	}

	lines := strings.SplitAfter(string(contents), lineBreakConstant)
	if !isChangelogHeader(lines[0]) {
		return esr.SchemaError{Path: path, Reason: changelogNotHeaderReasonConstant}
	}

	headerLength := changelogHeaderLineCountConstant
	if headerLength > len(lines) {
		headerLength = len(lines)
	}
	header := strings.Join(lines[:headerLength], "")
	if !strings.HasSuffix(header, lineBreakConstant) {
		header += lineBreakConstant
	}
	entry := fmt.Sprintf(changelogEntryTemplateConstant, esr.ESRVersion(esrVersion).ReleaseVersion(), mutator.clock.Now().Format(changelogDateLayoutConstant))
	updated := header + entry + strings.Join(lines[headerLength:], "")

	if writeError := mutator.writeFile(path, []byte(updated), fileMode); writeError != nil {
		return fmt.Errorf(writeChangelogErrorTemplateConstant, path, writeError)
	}
	return nil
}

func isChangelogHeader(line string) bool {
	lowered := strings.ToLower(line)
	for _, marker := range changelogHeaderMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
