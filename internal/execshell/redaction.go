package execshell

import (
	"regexp"
	"strings"
)

const (
	redactionPlaceholderConstant             = "***"
	credentialURLPatternConstant             = `(https?://)[^@/\s]+@`
	credentialURLReplacementTemplateConstant = "${1}" + redactionPlaceholderConstant + "@"
)

var credentialURLExpression = regexp.MustCompile(credentialURLPatternConstant)

// Redactor masks secrets and URL credentials in text destined for logs.
type Redactor struct {
	secretValues []string
}

// NewRedactor builds a redactor for the non-empty secret values.
func NewRedactor(secretValues ...string) Redactor {
	return Redactor{}.With(secretValues...)
}

// With returns a redactor that additionally masks secretValues.
func (redactor Redactor) With(secretValues ...string) Redactor {
	combined := append([]string{}, redactor.secretValues...)
	for _, secretValue := range secretValues {
		trimmed := strings.TrimSpace(secretValue)
		if len(trimmed) == 0 {
			continue
		}
		combined = append(combined, trimmed)
	}
	return Redactor{secretValues: combined}
}

// Redact replaces every secret occurrence and any URL user-info in text.
func (redactor Redactor) Redact(text string) string {
	redacted := credentialURLExpression.ReplaceAllString(text, credentialURLReplacementTemplateConstant)
	for _, secretValue := range redactor.secretValues {
		redacted = strings.ReplaceAll(redacted, secretValue, redactionPlaceholderConstant)
	}
	return redacted
}

// RedactCommand returns a copy of command safe for display.
func (redactor Redactor) RedactCommand(command ShellCommand) ShellCommand {
	redactedArguments := make([]string, 0, len(command.Details.Arguments))
	for _, argument := range command.Details.Arguments {
		redactedArguments = append(redactedArguments, redactor.Redact(argument))
	}
	redactedCommand := command
	redactedCommand.Details.Arguments = redactedArguments
	redactedCommand.Details.EnvironmentVariables = nil
	redactedCommand.Details.StandardInput = nil
	return redactedCommand
}
