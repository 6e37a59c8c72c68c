// Package clierror provides structured errors for CLI output with codes,
// exit codes, and remediation hints.
package clierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aura-comms/aura/pkg/fault"
)

// Exit codes for the aura CLI.
const (
	ExitSuccess      = 0 // Operation completed successfully
	ExitGeneral      = 1 // Unknown/unhandled error
	ExitDuplicate    = 2 // Resource with that name already exists
	ExitNoAuthority  = 3 // No authority configured on this device
	ExitBadThreshold = 4 // Threshold exceeds witness count
	ExitVerifyFailed = 5 // Signature verification failed
)

// Error codes (strings) for programmatic error handling
const (
	CodeDuplicateAuthority = "DUPLICATE_AUTHORITY"
	CodeNoAuthority        = "NO_AUTHORITY"
	CodeAuthorityNotFound  = "AUTHORITY_NOT_FOUND"
	CodeBadThreshold       = "BAD_THRESHOLD"
	CodeVerifyFailed       = "VERIFY_FAILED"
	CodeQuorumFailed       = "QUORUM_FAILED"
	CodeStorageFailed      = "STORAGE_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// DuplicateAuthority creates an error for a name collision on create.
func DuplicateAuthority(name string) *CLIError {
	return &CLIError{
		Code:      CodeDuplicateAuthority,
		Message:   fmt.Sprintf("authority '%s' already exists", name),
		Hint:      "Use a different name or inspect it with 'aura authority list'",
		Retryable: false,
		ExitCode:  ExitDuplicate,
	}
}

// NoAuthority creates an error for status queries on an empty device.
func NoAuthority() *CLIError {
	return &CLIError{
		Code:      CodeNoAuthority,
		Message:   "no authority exists on this device",
		Hint:      "Create one with 'aura authority create --name <name>'",
		Retryable: false,
		ExitCode:  ExitNoAuthority,
	}
}

// AuthorityNotFound creates an error when a named authority doesn't exist.
func AuthorityNotFound(name string) *CLIError {
	return &CLIError{
		Code:      CodeAuthorityNotFound,
		Message:   fmt.Sprintf("authority '%s' not found", name),
		Hint:      "Check the name with 'aura authority list'",
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// BadThreshold creates an error for an unsatisfiable signing threshold.
func BadThreshold(k, n int) *CLIError {
	return &CLIError{
		Code:      CodeBadThreshold,
		Message:   fmt.Sprintf("threshold %d exceeds the %d configured witnesses", k, n),
		Hint:      "Pass at least as many --configs entries as the threshold",
		Retryable: false,
		ExitCode:  ExitBadThreshold,
	}
}

// VerifyFailed creates an error for a signature that does not verify.
func VerifyFailed(reason string) *CLIError {
	return &CLIError{
		Code:      CodeVerifyFailed,
		Message:   fmt.Sprintf("signature verification failed: %s", reason),
		Hint:      "",
		Retryable: false,
		ExitCode:  ExitVerifyFailed,
	}
}

// QuorumFailed creates an error for a signing round that fell short.
func QuorumFailed(err error) *CLIError {
	msg := "signing round did not reach quorum"
	if err != nil {
		msg = fmt.Sprintf("%s: %s", msg, err.Error())
	}
	return &CLIError{
		Code:      CodeQuorumFailed,
		Message:   msg,
		Hint:      "Check that enough witnesses are reachable",
		Retryable: true,
		ExitCode:  ExitGeneral,
	}
}

// StorageFailed creates an error for store access failures.
func StorageFailed(err error) *CLIError {
	msg := "storage access failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %s", msg, err.Error())
	}
	return &CLIError{
		Code:      CodeStorageFailed,
		Message:   msg,
		Hint:      "Check the configured storage path and permissions",
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:      CodeInternalError,
		Message:   msg,
		Hint:      "",
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// FromFault maps a fault to a CLI error, carrying its code, hint, and
// retryability through to the operator.
func FromFault(err error) *CLIError {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return InternalError(err)
	}
	return &CLIError{
		Code:      fe.Code,
		Message:   fe.Message,
		Hint:      fe.Hint,
		Retryable: fe.Retryable,
		ExitCode:  ExitGeneral,
	}
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for human-readable table format.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			// Fallback to simple JSON if marshaling fails
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	// Human-readable table format
	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError prints the error to stderr in the appropriate format.
func PrintError(err *CLIError, outputFormat string) {
	fmt.Fprintln(os.Stderr, FormatError(err, outputFormat))
}
