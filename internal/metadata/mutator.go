package metadata

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/afero"
)

// RecordOutcome reports the result of RecordESR.
type RecordOutcome int

// Record outcomes.
const (
	RecordWritten RecordOutcome = iota
	RecordAlreadyRecorded
	RecordInvalid
)

const (
	recordWrittenLabelConstant         = "written"
	recordAlreadyRecordedLabelConstant = "already_recorded"
	recordInvalidLabelConstant         = "invalid"
	defaultFileModeConstant            = os.FileMode(0o644)
)

// ErrFilesystemNotConfigured indicates the mutator lacks a filesystem.
var ErrFilesystemNotConfigured = errors.New("metadata filesystem not configured")

// String returns a stable label for logs and reports.
func (outcome RecordOutcome) String() string {
	switch outcome {
	case RecordWritten:
		return recordWrittenLabelConstant
	case RecordAlreadyRecorded:
		return recordAlreadyRecordedLabelConstant
	default:
		return recordInvalidLabelConstant
	}
}

// Clock supplies the date written into changelog entries.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Mutator applies release metadata edits.
type Mutator struct {
	filesystem afero.Fs
	clock      Clock
}

// NewMutator constructs a Mutator. A nil clock defaults to SystemClock.
func NewMutator(filesystem afero.Fs, clock Clock) (*Mutator, error) {
	if filesystem == nil {
		return nil, ErrFilesystemNotConfigured
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Mutator{filesystem: filesystem, clock: clock}, nil
}

func (mutator *Mutator) readFile(path string) ([]byte, os.FileMode, error) {
	fileInfo, statError := mutator.filesystem.Stat(path)
	if statError != nil {
		return nil, 0, statError
	}
	contents, readError := afero.ReadFile(mutator.filesystem, path)
	if readError != nil {
		return nil, 0, readError
	}
	fileMode := fileInfo.Mode().Perm()
	if fileMode == 0 {
		fileMode = defaultFileModeConstant
	}
	return contents, fileMode, nil
}

func (mutator *Mutator) writeFile(path string, contents []byte, fileMode os.FileMode) error {
	return afero.WriteFile(mutator.filesystem, path, contents, fileMode)
}
