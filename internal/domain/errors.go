package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for reporting.
type ErrorKind string

const (
	KindParse      ErrorKind = "parse"
	KindNoData     ErrorKind = "no_data"
	KindDataSource ErrorKind = "data_source"
)

// ParseError reports a malformed archive line. Source and Offset are filled
// in by the reader that produced the line.
type ParseError struct {
	Source string
	Offset int64
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse error: %s: %q", e.Reason, e.Line)
	}
	return fmt.Sprintf("parse error in %s at byte %d: %s: %q", e.Source, e.Offset, e.Reason, e.Line)
}

// NoDataError reports that a metric's input subset was empty.
type NoDataError struct {
	Scope   string
	Element Element
	Metric  Metric
}

func (e *NoDataError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("no data for %s %s", e.Metric, e.Element)
	}
	return fmt.Sprintf("no data for %s %s in scope %s", e.Metric, e.Element, e.Scope)
}

// DataSourceError reports an unreadable or missing data source.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// ScopeError wraps the failure that aborted a whole scope.
type ScopeError struct {
	Scope Scope
	Err   error
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scope %s aborted (%s): %v", e.Scope, Classify(e.Err), e.Err)
}

func (e *ScopeError) Unwrap() error { return e.Err }

// Classify maps an error chain onto one of the reportable kinds. Errors
// that are neither parse nor no-data failures originate from reading the
// source and are classified as data source failures.
func Classify(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	var nd *NoDataError
	if errors.As(err, &nd) {
		return KindNoData
	}
	return KindDataSource
}
