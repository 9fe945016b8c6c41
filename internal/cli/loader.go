package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/team-wildflyer/mapsync/internal/scene"
)

// Error code constants shared by every command. Scene validation codes
// (E2xx) come from the scene package.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotCUE       = "E003" // Scene path is not a .cue file
	ErrCodeLoadFailed   = "E004" // Scene file unreadable
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE syntax or evaluation error
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeInvalidField = "E008" // Scene field has the wrong shape
	ErrCodeJournal      = "E009" // Journal open or read error
	ErrCodePlanAborted  = "E010" // Sync pass aborted by a configuration error
)

// LoadError is a scene loading failure with an error code and, for CUE
// errors, a source position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadScene reads and compiles one scene file. Every failure is a
// *LoadError.
func LoadScene(path string) (*scene.Scene, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scene file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scene file: %v", err)}
	}
	if info.IsDir() || filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeNotCUE, Message: fmt.Sprintf("not a .cue file: %s", path)}
	}

	s, err := scene.Load(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return s, nil
}

// convertCompileError converts a scene compile error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *scene.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// MapFieldToErrorCode maps a scene compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeBuildFailed
	case "":
		return ErrCodeGeneric
	default:
		return ErrCodeInvalidField
	}
}

// loadErrorOf returns err as a *LoadError, wrapping anything else as
// generic.
func loadErrorOf(err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}
