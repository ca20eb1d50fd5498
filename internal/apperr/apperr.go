// Package apperr defines the error types surfaced in API error envelopes.
package apperr

import (
	"fmt"
	"path"
	"reflect"

	"github.com/pkg/errors"
)

// Typed is implemented by errors that name their own error_type.
type Typed interface {
	ErrorType() string
}

// ValueError reports bad caller input such as an unknown source type.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string     { return e.Msg }
func (e *ValueError) ErrorType() string { return "ValueError" }

// Valuef returns a ValueError with a formatted message.
func Valuef(format string, args ...interface{}) error {
	return errors.WithStack(&ValueError{Msg: fmt.Sprintf(format, args...)})
}

// ConfigError reports a required setting that is not configured.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string     { return fmt.Sprintf("missing required configuration %s", e.Key) }
func (e *ConfigError) ErrorType() string { return "ConfigError" }

// MissingConfig returns a ConfigError for key.
func MissingConfig(key string) error {
	return errors.WithStack(&ConfigError{Key: key})
}

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string     { return fmt.Sprintf("panic: %v", e.Value) }
func (e *PanicError) ErrorType() string { return "PanicError" }

// HTTPError reports a non-200 response from an upstream API.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string     { return fmt.Sprintf("API returned status %d", e.StatusCode) }
func (e *HTTPError) ErrorType() string { return "HTTPError" }

// HTTPStatus returns an HTTPError for code.
func HTTPStatus(code int) error {
	return errors.WithStack(&HTTPError{StatusCode: code})
}

// TypeName returns the error_type reported for err: the ErrorType of the
// first typed error in the chain, otherwise the package-qualified type of
// the first error that is not a plain wrapper, such as "url.Error".
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	var typed Typed
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}

	cause := errors.Cause(err)
	for isWrapper(reflect.TypeOf(cause)) {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = errors.Cause(next)
	}

	t := indirect(reflect.TypeOf(cause))
	if t.Name() == "" || isWrapper(t) {
		return "error"
	}
	return path.Base(t.PkgPath()) + "." + t.Name()
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// isWrapper reports whether t comes from a package whose errors only carry
// a message around another error.
func isWrapper(t reflect.Type) bool {
	switch indirect(t).PkgPath() {
	case "fmt", "errors", "github.com/pkg/errors":
		return true
	}
	return false
}
