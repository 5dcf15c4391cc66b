package repostate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	gitModulesFileNameConstant         = ".gitmodules"
	gitUpdateIndexSubcommandConstant   = "update-index"
	gitAssumeUnchangedFlagConstant     = "--assume-unchanged"
	httpsSchemeConstant                = "https://"
	credentialSeparatorConstant        = "@"
	lineSeparatorConstant              = "\n"
	logFieldTargetConstant             = "target"
	invalidTargetMessageConstant       = "Submodule target is not an https url, skipping"
	missingModulesMessageConstant      = "No .gitmodules file, skipping credential injection"
	targetNotFoundMessageConstant      = "Submodule target not present in .gitmodules"
	patchedSubmoduleMessageConstant    = "Injected token into submodule url"
	readModulesErrorTemplateConstant   = "read %s: %w"
	writeModulesErrorTemplateConstant  = "write %s: %w"
	ignoreModulesErrorTemplateConstant = "ignore local changes to %s: %w"
	statModulesErrorTemplateConstant   = "inspect %s: %w"
)

// PatchSubmoduleCredential inserts token after https:// in the first
// .gitmodules line containing targetURLFragment, then marks .gitmodules as
// assume-unchanged so the credential is never committed. It reports whether
// a line was rewritten.
func (repository *Repository) PatchSubmoduleCredential(executionContext context.Context, scope RepositoryScope, targetURLFragment string, token string) (bool, error) {
	logger := repository.logger.With(zap.String(logFieldScopeConstant, scope.String()), zap.String(logFieldTargetConstant, targetURLFragment))
	if !strings.Contains(targetURLFragment, httpsSchemeConstant) || len(strings.TrimSpace(token)) == 0 {
		logger.Debug(invalidTargetMessageConstant)
		return false, nil
	}

	modulesPath := filepath.Join(repository.Directory(scope), gitModulesFileNameConstant)
	exists, statError := afero.Exists(repository.filesystem, modulesPath)
	if statError != nil {
		return false, fmt.Errorf(statModulesErrorTemplateConstant, modulesPath, statError)
	}
	if !exists {
		logger.Debug(missingModulesMessageConstant)
		return false, nil
	}

	contents, readError := afero.ReadFile(repository.filesystem, modulesPath)
	if readError != nil {
		return false, fmt.Errorf(readModulesErrorTemplateConstant, modulesPath, readError)
	}

	patched := false
	lines := strings.Split(string(contents), lineSeparatorConstant)
	for lineIndex, line := range lines {
		if !strings.Contains(line, targetURLFragment) {
			continue
		}
		lines[lineIndex] = strings.Replace(line, httpsSchemeConstant, httpsSchemeConstant+token+credentialSeparatorConstant, 1)
		patched = true
		break
	}

	if patched {
		fileInfo, infoError := repository.filesystem.Stat(modulesPath)
		if infoError != nil {
			return false, fmt.Errorf(statModulesErrorTemplateConstant, modulesPath, infoError)
		}
		if writeError := afero.WriteFile(repository.filesystem, modulesPath, []byte(strings.Join(lines, lineSeparatorConstant)), fileInfo.Mode().Perm()); writeError != nil {
			return false, fmt.Errorf(writeModulesErrorTemplateConstant, modulesPath, writeError)
		}
		logger.Info(patchedSubmoduleMessageConstant)
	} else {
		logger.Debug(targetNotFoundMessageConstant)
	}

	if _, ignoreError := repository.git(executionContext, scope, gitUpdateIndexSubcommandConstant, gitAssumeUnchangedFlagConstant, gitModulesFileNameConstant); ignoreError != nil {
		return patched, fmt.Errorf(ignoreModulesErrorTemplateConstant, modulesPath, ignoreError)
	}
	return patched, nil
}
