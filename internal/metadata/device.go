package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/temirov/esrctl/internal/esr"
)

// Device repository files.
const (
	RepositoryFileName = "repo.yml"
	VersionFileName    = "VERSION"
	ChangelogFileName  = "CHANGELOG.md"
)

const notDeviceRepositoryReasonConstant = "not a device repository: missing %s"

// ApplyDeviceMetadata records the device esr shape in root/repo.yml and, when
// the record is new, updates VERSION and CHANGELOG.md. An existing record
// leaves all three files untouched.
func (mutator *Mutator) ApplyDeviceMetadata(root string, esrVersion string) (RecordOutcome, error) {
	for _, requiredFile := range []string{VersionFileName, ChangelogFileName, RepositoryFileName} {
		exists, existsError := mutator.Exists(filepath.Join(root, requiredFile))
		if existsError != nil {
			return RecordInvalid, existsError
		}
		if !exists {
			return RecordInvalid, esr.SchemaError{Path: root, Reason: fmt.Sprintf(notDeviceRepositoryReasonConstant, requiredFile)}
		}
	}

	outcome, recordError := mutator.RecordESR(filepath.Join(root, RepositoryFileName), nil, esrVersion)
	if recordError != nil || outcome != RecordWritten {
		return outcome, recordError
	}
	if versionError := mutator.SetVersionFile(filepath.Join(root, VersionFileName), esrVersion); versionError != nil {
		return RecordInvalid, versionError
	}
	if changelogError := mutator.PrependChangelog(filepath.Join(root, ChangelogFileName), esrVersion); changelogError != nil {
		return RecordInvalid, changelogError
	}
	return RecordWritten, nil
}

// Exists reports whether a regular file exists at path.
func (mutator *Mutator) Exists(path string) (bool, error) {
	fileInfo, statError := mutator.filesystem.Stat(path)
	if statError != nil {
		if errors.Is(statError, os.ErrNotExist) {
			return false, nil
		}
		return false, statError
	}
	return !fileInfo.IsDir(), nil
}
