package release_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/metadata"
	"github.com/temirov/esrctl/internal/repostate"
)

const (
	testESRVersionConstant = "2023.01"
	testOSVersionConstant  = "2.68"
	testBaseTagConstant    = "v2.68.1+rev1"
	testReleaseTagConstant = "v2023.01.0"
	testChangelogConstant  = "Change log\n-----------\n\n# v2.68.1+rev1\n## (2023-01-05)\n\n* Update meta-balena\n"
	testDeviceRecordYAML   = "type: device\n"
	testMetaRecordYAML     = "type: meta-layer\n"
	testVersionFileContent = "2.68.1+rev1\n"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2023, time.February, 3, 10, 0, 0, 0, time.UTC)
}

// fakeRemote stands in for the hosted repositories, shared across runs.
type fakeRemote struct {
	mutex    sync.Mutex
	branches map[string]bool
	tags     map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{branches: map[string]bool{}, tags: map[string]bool{}}
}

func (remote *fakeRemote) key(repository string, reference string) string {
	return repository + "#" + reference
}

func (remote *fakeRemote) hasBranch(repository string, branch string) bool {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.branches[remote.key(repository, branch)]
}

func (remote *fakeRemote) hasTag(repository string, tag string) bool {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.tags[remote.key(repository, tag)]
}

func (remote *fakeRemote) publish(repository string, reference string) {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	if reference == testReleaseTagConstant {
		remote.tags[remote.key(repository, reference)] = true
		return
	}
	remote.branches[remote.key(repository, reference)] = true
}

type fakeRepository struct {
	handle      repostate.Handle
	remote      *fakeRemote
	cloneError  error
	pushErrors  map[string]error
	mutex       sync.Mutex
	calls       []string
	writeCounts int
}

func (repository *fakeRepository) record(call string, write bool) {
	repository.mutex.Lock()
	defer repository.mutex.Unlock()
	repository.calls = append(repository.calls, call)
	if write {
		repository.writeCounts++
	}
}

func (repository *fakeRepository) Handle() repostate.Handle {
	return repository.handle
}

func (repository *fakeRepository) Directory(scope repostate.RepositoryScope) string {
	if scope == repostate.MetaLayerScope {
		return filepath.Join(repository.handle.Path, repostate.DefaultMetaLayerPath)
	}
	return repository.handle.Path
}

func (repository *fakeRepository) Clone(context.Context) (string, error) {
	repository.record("clone", false)
	if repository.cloneError != nil {
		return "", repository.cloneError
	}
	return testBaseTagConstant, nil
}

func (repository *fakeRepository) BranchExists(_ context.Context, branch string) (bool, error) {
	repository.record("branch_exists "+branch, false)
	return repository.remote.hasBranch(repository.handle.Remote, branch), nil
}

func (repository *fakeRepository) BranchOrCheckout(_ context.Context, scope repostate.RepositoryScope, name string) error {
	repository.record(fmt.Sprintf("checkout %s %s", scope, name), true)
	return nil
}

func (repository *fakeRepository) Commit(_ context.Context, scope repostate.RepositoryScope, message string) (repostate.CommitOutcome, error) {
	repository.record(fmt.Sprintf("commit %s %s", scope, message), true)
	return repostate.Committed, nil
}

func (repository *fakeRepository) Push(_ context.Context, scope repostate.RepositoryScope, reference string) (repostate.PushOutcome, error) {
	repository.record(fmt.Sprintf("push %s %s", scope, reference), true)
	if pushError, found := repository.pushErrors[reference]; found {
		return repostate.Pushed, pushError
	}
	repository.remote.publish(repository.handle.Remote, reference)
	return repostate.Pushed, nil
}

func (repository *fakeRepository) Tag(_ context.Context, scope repostate.RepositoryScope, version string, ref string, message string) (repostate.TagOutcome, error) {
	if repository.remote.hasTag(repository.handle.Remote, version) {
		repository.record(fmt.Sprintf("tag_exists %s %s", scope, version), false)
		return repostate.TagAlreadyExists, esr.AlreadyDoneError{Subject: "tag " + version}
	}
	repository.record(fmt.Sprintf("tag %s %s %s", scope, version, ref), true)
	return repostate.Tagged, nil
}

type stubTagResolver struct {
	tags map[string]string
}

func (resolver stubTagResolver) HighestTag(_ context.Context, remote string, versionPrefix string) (string, error) {
	if tag, found := resolver.tags[versionPrefix]; found {
		return tag, nil
	}
	return "", esr.NotFoundError{Kind: "tag", Subject: versionPrefix + " on " + remote}
}

type stubCollector struct {
	devices map[string][]string
	err     error
}

func (collector stubCollector) Collect(_ context.Context, repositoryPath string) ([]string, error) {
	if collector.err != nil {
		return nil, collector.err
	}
	return collector.devices[filepath.Base(repositoryPath)], nil
}

func seedDeviceRepository(filesystem afero.Fs, root string, withMetaRecord bool) error {
	files := map[string]string{
		filepath.Join(root, metadata.RepositoryFileName): testDeviceRecordYAML,
		filepath.Join(root, metadata.VersionFileName):    testVersionFileContent,
		filepath.Join(root, metadata.ChangelogFileName):  testChangelogConstant,
	}
	if withMetaRecord {
		files[filepath.Join(root, repostate.DefaultMetaLayerPath, metadata.RepositoryFileName)] = testMetaRecordYAML
	}
	for path, contents := range files {
		if writeError := afero.WriteFile(filesystem, path, []byte(contents), 0o644); writeError != nil {
			return writeError
		}
	}
	return nil
}
