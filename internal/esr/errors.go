package esr

import (
	"errors"
	"fmt"
)

const (
	validationErrorTemplateConstant            = "invalid %s %q"
	validationErrorWithPatternTemplateConstant = "invalid %s %q: must match %s"
	notFoundErrorTemplateConstant              = "no %s found for %s"
	alreadyDoneErrorTemplateConstant           = "%s already exists"
	authErrorTemplateConstant                  = "authentication failed during %s"
	authErrorWithCauseTemplateConstant         = "authentication failed during %s: %v"
	schemaErrorTemplateConstant                = "%s: %s"
	pushRejectedErrorTemplateConstant          = "push of %s rejected"
	pushRejectedErrorWithCauseTemplateConstant = "push of %s rejected: %v"
	repositoryErrorTemplateConstant            = "%s failed in state %s: %v"
)

// ValidationError reports a malformed version, branch pattern, or tag value.
type ValidationError struct {
	Field   string
	Value   string
	Pattern string
}

// Error describes the rejected value.
func (validationError ValidationError) Error() string {
	if len(validationError.Pattern) == 0 {
		return fmt.Sprintf(validationErrorTemplateConstant, validationError.Field, validationError.Value)
	}
	return fmt.Sprintf(validationErrorWithPatternTemplateConstant, validationError.Field, validationError.Value, validationError.Pattern)
}

// NotFoundError reports a missing tag, branch, or file.
type NotFoundError struct {
	Kind    string
	Subject string
}

// Error describes the missing item.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.Kind, notFoundError.Subject)
}

// AlreadyDoneError reports an idempotent no-op.
type AlreadyDoneError struct {
	Subject string
}

// Error describes the pre-existing state.
func (alreadyDoneError AlreadyDoneError) Error() string {
	return fmt.Sprintf(alreadyDoneErrorTemplateConstant, alreadyDoneError.Subject)
}

// AuthError reports a git or HTTP authentication failure.
type AuthError struct {
	Operation string
	Cause     error
}

// Error describes the failed operation.
func (authError AuthError) Error() string {
	if authError.Cause == nil {
		return fmt.Sprintf(authErrorTemplateConstant, authError.Operation)
	}
	return fmt.Sprintf(authErrorWithCauseTemplateConstant, authError.Operation, authError.Cause)
}

// Unwrap exposes the underlying cause.
func (authError AuthError) Unwrap() error {
	return authError.Cause
}

// SchemaError reports a metadata file whose contents do not have the expected shape.
type SchemaError struct {
	Path   string
	Reason string
}

// Error describes the schema violation.
func (schemaError SchemaError) Error() string {
	return fmt.Sprintf(schemaErrorTemplateConstant, schemaError.Path, schemaError.Reason)
}

// PushRejectedError reports a push refused by the remote for reasons other than authentication.
type PushRejectedError struct {
	Reference string
	Cause     error
}

// Error describes the rejected reference.
func (pushRejectedError PushRejectedError) Error() string {
	if pushRejectedError.Cause == nil {
		return fmt.Sprintf(pushRejectedErrorTemplateConstant, pushRejectedError.Reference)
	}
	return fmt.Sprintf(pushRejectedErrorWithCauseTemplateConstant, pushRejectedError.Reference, pushRejectedError.Cause)
}

// Unwrap exposes the underlying cause.
func (pushRejectedError PushRejectedError) Unwrap() error {
	return pushRejectedError.Cause
}

// RepositoryError attributes a fatal failure to one repository and the state it was in.
type RepositoryError struct {
	Remote string
	State  string
	Cause  error
}

// Error describes the repository failure.
func (repositoryError RepositoryError) Error() string {
	return fmt.Sprintf(repositoryErrorTemplateConstant, repositoryError.Remote, repositoryError.State, repositoryError.Cause)
}

// Unwrap exposes the underlying cause.
func (repositoryError RepositoryError) Unwrap() error {
	return repositoryError.Cause
}

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var authError AuthError
	return errors.As(err, &authError)
}

// IsAlreadyDone reports whether err carries an AlreadyDoneError.
func IsAlreadyDone(err error) bool {
	var alreadyDoneError AlreadyDoneError
	return errors.As(err, &alreadyDoneError)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundError NotFoundError
	return errors.As(err, &notFoundError)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var validationError ValidationError
	return errors.As(err, &validationError)
}

// IsSchema reports whether err carries a SchemaError.
func IsSchema(err error) bool {
	var schemaError SchemaError
	return errors.As(err, &schemaError)
}
