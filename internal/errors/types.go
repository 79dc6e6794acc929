// Package errors defines the typed errors produced by the generation
// pipeline. Every failure of a stage is a *GenError carrying a Kind, so
// callers can branch with errors.Is against the exported sentinels
// (ErrArrayMergeConflict, ErrInvalidTocFile, ...) without parsing messages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindDirectoryNotFound   Kind = "directory_not_found"
	KindNotADirectory       Kind = "not_a_directory"
	KindInvalidDataFile     Kind = "invalid_data_file"
	KindArrayMergeConflict  Kind = "array_merge_conflict"
	KindShapeMergeConflict  Kind = "shape_merge_conflict"
	KindInvalidTocFile      Kind = "invalid_toc_file"
	KindTemplateRenderError Kind = "template_render_error"
	KindIO                  Kind = "io"
	KindConfig              Kind = "config"
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	return string(k)
}

// GenError is a structured error with file and key path context.
type GenError struct {
	Kind    Kind
	Message string
	// Path is the file or directory the error relates to.
	Path string
	// KeyPath is the dotted key path inside a data tree, for merge conflicts.
	KeyPath string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *GenError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	if e.KeyPath != "" {
		parts = append(parts, "at "+e.KeyPath)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *GenError) Unwrap() error {
	return e.Cause
}

// Is matches any *GenError of the same Kind, so the sentinels below work
// with errors.Is regardless of path or message.
func (e *GenError) Is(target error) bool {
	var t *GenError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}

	return false
}

// WithContext adds context information to the error.
func (e *GenError) WithContext(key string, value interface{}) *GenError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath sets the file or directory the error relates to.
func (e *GenError) WithPath(path string) *GenError {
	e.Path = path

	return e
}

// Sentinels for errors.Is.
var (
	ErrDirectoryNotFound   = &GenError{Kind: KindDirectoryNotFound}
	ErrNotADirectory       = &GenError{Kind: KindNotADirectory}
	ErrInvalidDataFile     = &GenError{Kind: KindInvalidDataFile}
	ErrArrayMergeConflict  = &GenError{Kind: KindArrayMergeConflict}
	ErrShapeMergeConflict  = &GenError{Kind: KindShapeMergeConflict}
	ErrInvalidTocFile      = &GenError{Kind: KindInvalidTocFile}
	ErrTemplateRenderError = &GenError{Kind: KindTemplateRenderError}
)

// Error creation functions

// NewDirectoryNotFound creates an error for a missing input directory.
func NewDirectoryNotFound(path string) *GenError {
	return &GenError{
		Kind:    KindDirectoryNotFound,
		Message: "directory not found",
		Path:    path,
	}
}

// NewNotADirectory creates an error for a path that exists but is a file.
func NewNotADirectory(path string) *GenError {
	return &GenError{
		Kind:    KindNotADirectory,
		Message: "path is not a directory",
		Path:    path,
	}
}

// NewInvalidDataFile creates an error for a data file whose top-level value
// is not an object. got describes what was parsed instead.
func NewInvalidDataFile(path, got string) *GenError {
	return &GenError{
		Kind:    KindInvalidDataFile,
		Message: "expected object at top level, got " + got,
		Path:    path,
	}
}

// NewInvalidTocFile is NewInvalidDataFile for rendered toc output.
func NewInvalidTocFile(path, got string) *GenError {
	return &GenError{
		Kind:    KindInvalidTocFile,
		Message: "rendered toc is not an object, got " + got,
		Path:    path,
	}
}

// NewArrayMergeConflict creates an error for two non-empty sequences
// colliding at keyPath.
func NewArrayMergeConflict(keyPath string) *GenError {
	return &GenError{
		Kind:    KindArrayMergeConflict,
		Message: "arrays cannot be merged, use different keys",
		KeyPath: keyPath,
	}
}

// NewShapeMergeConflict creates an error for values of incompatible shape
// (object, sequence, scalar) colliding at keyPath.
func NewShapeMergeConflict(keyPath, prior, later string) *GenError {
	return &GenError{
		Kind:    KindShapeMergeConflict,
		Message: fmt.Sprintf("cannot merge %s into %s", later, prior),
		KeyPath: keyPath,
	}
}

// NewTemplateRenderError wraps a dialect failure for the template at path.
func NewTemplateRenderError(path string, cause error) *GenError {
	return &GenError{
		Kind:    KindTemplateRenderError,
		Message: "render failed",
		Path:    path,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(path, message string, cause error) *GenError {
	return &GenError{
		Kind:    KindIO,
		Message: message,
		Path:    path,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *GenError {
	return &GenError{
		Kind:    KindConfig,
		Message: message,
	}
}

// KindOf returns the Kind of the first *GenError in err's chain, or "".
func KindOf(err error) Kind {
	var ge *GenError
	if errors.As(err, &ge) {
		return ge.Kind
	}

	return ""
}

// IsMergeConflict checks if an error is an array or shape merge conflict.
func IsMergeConflict(err error) bool {
	kind := KindOf(err)

	return kind == KindArrayMergeConflict || kind == KindShapeMergeConflict
}

// ErrorHandler reports run failures without stopping the caller.
type ErrorHandler struct {
	logger   Logger
	notifier Notifier
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier is told about every handled error, e.g. to push it to browsers.
type Notifier interface {
	NotifyError(ctx context.Context, err error) error
}

// NewErrorHandler creates a new error handler. Both arguments may be nil.
func NewErrorHandler(logger Logger, notifier Notifier) *ErrorHandler {
	return &ErrorHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle logs err with its structured context and forwards it to the notifier.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var ge *GenError
	if errors.As(err, &ge) {
		h.handleGenError(ctx, ge)
	} else if h.logger != nil {
		h.logger.Error(ctx, err, "Generation failed")
	}

	if h.notifier != nil {
		_ = h.notifier.NotifyError(ctx, err)
	}
}

func (h *ErrorHandler) handleGenError(ctx context.Context, err *GenError) {
	if h.logger == nil {
		return
	}

	fields := []interface{}{"kind", err.Kind.String()}
	if err.Path != "" {
		fields = append(fields, "path", err.Path)
	}
	if err.KeyPath != "" {
		fields = append(fields, "key_path", err.KeyPath)
	}

	switch err.Kind {
	case KindArrayMergeConflict, KindShapeMergeConflict, KindInvalidDataFile, KindInvalidTocFile, KindTemplateRenderError:
		// Input mistakes the user can fix; the watcher will try again.
		h.logger.Warn(ctx, err, "Generation failed on invalid input", fields...)
	default:
		h.logger.Error(ctx, err, "Generation failed", fields...)
	}
}
