// Package domain models daily weather station observations and the
// read-only results derived from them.
//
// # Data Source
//
// Observations come from a GHCN-Daily style archive partitioned into one or
// more CSV files per year. Each file is line-delimited, has no header, and
// carries one observation per line.
//
// # Record Layout
//
// Eight comma-separated fields in fixed order:
//
//	station,date,element,value,mflag,qflag,sflag,obstime
//	USW00094728,20000101,TMIN,-50,,,X,0700
//
//	station   station identifier, compared lexicographically
//	date      calendar day as YYYYMMDD
//	element   measurement kind; TMIN and TMAX are analysed, all others are carried
//	value     signed integer in tenths of a degree Celsius (-50 = -5.0 C)
//	mflag     measurement flag
//	qflag     quality flag; empty means the record passed quality assurance
//	sflag     source flag
//	obstime   observation time, HHMM
//
// # Quality Flags
//
// Any non-empty qflag marks the value as suspect. Such records are removed by
// [Keep] before any statistic sees them. They are never corrected or imputed.
//
// # Error Kinds
//
// Every failure surfaced by the pipeline is one of [ParseError],
// [NoDataError] or [DataSourceError]; [Classify] maps an arbitrary error
// chain onto that set for reporting.
package domain
