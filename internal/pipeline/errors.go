// Package pipeline implements the certificate ingestion pipeline: format
// detection, chain assembly, conversion to the canonical vault bundle, and
// the import orchestration against the vault control-plane.
package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline failure modes. Every error surfaced by this package wraps exactly
// one of these sentinels (or a collaborator error), so callers dispatch with
// errors.Is rather than string matching.
var (
	// ErrFormatUnknown means the content matched no known container format.
	// The pipeline never guesses.
	ErrFormatUnknown = errors.New("content matches no known certificate format")

	// ErrBlobTooLarge means the submitted material exceeded MaxBlobSize.
	ErrBlobTooLarge = errors.New("certificate material exceeds size limit")

	// ErrChainAmbiguous means the leaf or the next link could not be chosen
	// deterministically from the submitted certificates.
	ErrChainAmbiguous = errors.New("certificate chain is ambiguous")

	// ErrChainIncomplete means a submitted certificate could not be linked
	// into the chain (an internal gap).
	ErrChainIncomplete = errors.New("certificate chain is incomplete")

	// ErrPrivateKeyRequired means the submission carries no private key and
	// the operation is not chain-only.
	ErrPrivateKeyRequired = errors.New("private key required")

	// ErrPasswordInvalid means a protected container failed to open with the
	// supplied (or empty) password. One attempt only, never brute-forced.
	ErrPasswordInvalid = errors.New("container password invalid")
)

// Pipeline stage names used in error reporting.
const (
	StageGuard    = "guard"
	StageDetect   = "detect"
	StageAssemble = "assemble"
	StageConvert  = "convert"
	StageSubmit   = "submit"
	StageVerify   = "verify"
)

// StageError tags a pipeline failure with the stage it occurred in. Error
// text never contains passwords or raw certificate material.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageErr wraps err with its originating stage, passing nil through.
func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
