// Package rendering fills {{B<n>}} markers in ODT templates.
package rendering

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is matched by TemplateNotFoundError via errors.Is.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateNotFoundError is returned when a template path does not resolve to a file.
type TemplateNotFoundError struct {
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template file not found: %s", e.Path)
}

// Is implements errors.Is support
func (e *TemplateNotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

// TemplateError represents a template that exists but cannot be read as an ODT package
type TemplateError struct {
	Path    string
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error: %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("template error: %s: %s", e.Path, e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// RenderError represents a failure while rewriting or serializing the document
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
