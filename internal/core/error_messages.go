// Package core provides the business logic for cleaning client, worker and task data.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Action: Split the file into smaller chunks
//	          Patterns: "file too large"
//
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Action: Ensure file is comma-separated with consistent columns
//	          Patterns: "invalid csv"
//
//	FILE003 - Invalid workbook: File is not a readable Excel workbook
//	          Action: Save the file as .xlsx or export it to CSV
//	          Patterns: "invalid xlsx"
//
//	FILE004 - Unsupported format: Only CSV and XLSX files are accepted
//	          Action: Upload a .csv or .xlsx file
//	          Patterns: "unsupported file format"
//
//	FILE005 - No data: File has no header row or no data rows
//	          Action: Include a header row and at least one data row
//	          Patterns: "at least one data row"
//
//	FILE006 - No file: No file was selected
//	          Action: Please select a file to upload
//	          Patterns: "no file provided"
//
//	FILE007 - Unknown layout: Headers do not match clients, workers or tasks
//	          Action: Check the column headers or choose the data type explicitly
//	          Patterns: "could not detect entity type"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Unknown entity: Data type must be clients, workers or tasks
//	         Patterns: "unknown entity"
//
//	VAL002 - Row out of range: The row being edited does not exist
//	         Patterns: "row out of range"
//
//	VAL003 - Unknown fix: The requested correction does not exist
//	         Patterns: "unknown fix"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: The session expired or never existed
//	         Patterns: "session not found"
//
//	SES002 - Too many sessions: The server holds its maximum number of sessions
//	         Patterns: "too many sessions"
//
//	SES003 - No saved snapshot: Nothing was saved for this session
//	         Patterns: "snapshot not found"
//
//	SES004 - Snapshots disabled: No snapshot store is configured
//	         Patterns: "snapshot store not configured"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many uploads in progress
//	         Patterns: "too many concurrent uploads"
//
//	UPL002 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	UPL003 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Rule Errors (RUL001-RUL099)
//
//	RUL001 - Invalid rule: Rule parameters do not match the data
//	         Patterns: "invalid rule"
//
//	RUL002 - Rule not found: The rule does not exist
//	         Patterns: "rule not found"
//
//	RUL003 - Unknown preset: The priority preset does not exist
//	         Patterns: "unknown priority preset"
//
//	RUL004 - Weights too high: Priority weights add up to more than 100%
//	         Patterns: "total weight exceeds"
//
//	RUL005 - Negative weight: A priority weight is below zero
//	         Patterns: "must be non-negative"
//
// # Storage Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to reach the snapshot database
//	        Patterns: "connection refused"
//
//	DB002 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File is not a readable Excel workbook",
			Action:  "Save the file as .xlsx or export it to CSV",
			Code:    "FILE003",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "Only CSV and XLSX files are accepted",
			Action:  "Upload a .csv or .xlsx file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "at least one data row",
		msg: UserMessage{
			Message: "File must contain headers and at least one data row",
			Action:  "Include a header row and at least one data row",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE006",
		},
	},
	{
		pattern: "could not detect entity type",
		msg: UserMessage{
			Message: "Headers do not match clients, workers or tasks",
			Action:  "Check the column headers or choose the data type explicitly",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL003)
	// =========================================================================
	{
		pattern: "unknown entity",
		msg: UserMessage{
			Message: "Unknown data type",
			Action:  "Use clients, workers or tasks",
			Code:    "VAL001",
		},
	},
	{
		pattern: "row out of range",
		msg: UserMessage{
			Message: "The row does not exist",
			Action:  "Reload the data and try again",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown fix",
		msg: UserMessage{
			Message: "Unknown correction",
			Action:  "Choose one of the suggested fixes",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES004)
	// =========================================================================
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Session not found",
			Action:  "The session may have expired. Please start a new session",
			Code:    "SES001",
		},
	},
	{
		pattern: "too many sessions",
		msg: UserMessage{
			Message: "The server is holding too many sessions",
			Action:  "Please try again later",
			Code:    "SES002",
		},
	},
	{
		pattern: "snapshot not found",
		msg: UserMessage{
			Message: "No saved snapshot for this session",
			Action:  "Save the session before restoring it",
			Code:    "SES003",
		},
	},
	{
		pattern: "snapshot store not configured",
		msg: UserMessage{
			Message: "Saving sessions is not enabled",
			Action:  "Configure STORE_DRIVER to enable snapshots",
			Code:    "SES004",
		},
	},

	// =========================================================================
	// Upload Errors (UPL001-UPL003)
	// =========================================================================
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL003",
		},
	},

	// =========================================================================
	// Rule Errors (RUL001-RUL005)
	// =========================================================================
	{
		pattern: "invalid rule",
		msg: UserMessage{
			Message: "Rule parameters do not match the data",
			Action:  "Check the tasks, groups and phases named in the rule",
			Code:    "RUL001",
		},
	},
	{
		pattern: "rule not found",
		msg: UserMessage{
			Message: "Rule not found",
			Action:  "Reload the rule list and try again",
			Code:    "RUL002",
		},
	},
	{
		pattern: "unknown priority preset",
		msg: UserMessage{
			Message: "Unknown priority preset",
			Action:  "Choose one of the listed presets",
			Code:    "RUL003",
		},
	},
	{
		pattern: "total weight exceeds",
		msg: UserMessage{
			Message: "Priority weights add up to more than 100%",
			Action:  "Lower some weights so the total is at most 100%",
			Code:    "RUL004",
		},
	},
	{
		pattern: "must be non-negative",
		msg: UserMessage{
			Message: "Priority weights cannot be negative",
			Action:  "Use weights between 0 and 100%",
			Code:    "RUL005",
		},
	},

	// =========================================================================
	// Storage Errors (DB001-DB002)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the snapshot database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB002",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(ErrSessionNotFound)
//	// msg.Code == "SES001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "Session not found (Code: SES001). The session may have expired. Please start a new session"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(err)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "Session not found"
//	fmt.Println(ue.User.Code)         // Show "SES001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
