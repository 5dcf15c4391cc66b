package versions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/esrctl/internal/esr"
	"github.com/temirov/esrctl/internal/gitrepo"
	"github.com/temirov/esrctl/internal/versions"
)

const testRemoteConstant = "git@github.com:balena-os/balena-intel.git"

type stubReferenceLister struct {
	tags            []string
	err             error
	recordedQueries []gitrepo.ReferenceQuery
}

func (lister *stubReferenceLister) ListReferences(_ context.Context, _ string, query gitrepo.ReferenceQuery) ([]*plumbing.Reference, error) {
	lister.recordedQueries = append(lister.recordedQueries, query)
	if lister.err != nil {
		return nil, lister.err
	}
	references := make([]*plumbing.Reference, 0, len(lister.tags))
	for _, tag := range lister.tags {
		references = append(references, plumbing.NewHashReference(plumbing.NewTagReferenceName(tag), plumbing.ZeroHash))
	}
	return references, nil
}

func TestResolverHighestTag(testInstance *testing.T) {
	testCases := []struct {
		name           string
		tags           []string
		prefix         string
		listError      error
		expectedTag    string
		expectNotFound bool
		expectAuth     bool
	}{
		{name: "numeric_order", tags: []string{"v2.9.0", "v2.10.0", "v2.1.3"}, prefix: "2", expectedTag: "v2.10.0"},
		{name: "os_version_revisions", tags: []string{"v2.68.0+rev1", "v2.68.1+rev1", "v2.68.1+rev3"}, prefix: "2.68", expectedTag: "v2.68.1+rev3"},
		{name: "boundary_excludes_longer_component", tags: []string{"v2.6.9", "v2.68.0"}, prefix: "2.6", expectedTag: "v2.6.9"},
		{name: "no_match", tags: []string{"v2.68.0"}, prefix: "2.69", expectNotFound: true},
		{name: "auth_failure", prefix: "2.68", listError: esr.AuthError{Operation: "ls-remote"}, expectAuth: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observerLogs := observer.New(zap.DebugLevel)
			lister := &stubReferenceLister{tags: testCase.tags, err: testCase.listError}
			resolver, creationError := versions.NewResolver(lister, zap.New(observerCore))
			require.NoError(testInstance, creationError)

			tag, resolveError := resolver.HighestTag(context.Background(), testRemoteConstant, testCase.prefix)
			switch {
			case testCase.expectNotFound:
				require.Error(testInstance, resolveError)
				require.True(testInstance, esr.IsNotFound(resolveError))
				require.Equal(testInstance, 1, observerLogs.FilterLevelExact(zapcore.WarnLevel).Len())
			case testCase.expectAuth:
				require.True(testInstance, esr.IsAuth(resolveError))
			default:
				require.NoError(testInstance, resolveError)
				require.Equal(testInstance, testCase.expectedTag, tag)
			}
			require.Len(testInstance, lister.recordedQueries, 1)
			require.Equal(testInstance, "v"+testCase.prefix+"*", lister.recordedQueries[0].Pattern)
		})
	}
}

func TestNewResolverValidatesDependencies(testInstance *testing.T) {
	_, creationError := versions.NewResolver(nil, zap.NewNop())
	require.True(testInstance, errors.Is(creationError, versions.ErrReferenceListerNotConfigured))

	_, creationError = versions.NewResolver(&stubReferenceLister{}, nil)
	require.ErrorIs(testInstance, creationError, versions.ErrLoggerNotConfigured)
}
