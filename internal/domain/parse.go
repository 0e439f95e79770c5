package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldCount is the number of comma-separated fields in a record.
const FieldCount = 8

// ParseLine converts one raw archive line into an Observation.
// It fails with a *ParseError when the field count is not exactly
// FieldCount, the date is not YYYYMMDD, or the value is not an integer.
func ParseLine(line string) (Observation, error) {
	line = strings.TrimSuffix(line, "\r")

	fields := strings.Split(line, ",")
	if len(fields) != FieldCount {
		return Observation{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", FieldCount, len(fields)),
		}
	}

	if !isDate(fields[1]) {
		return Observation{}, &ParseError{Line: line, Reason: fmt.Sprintf("invalid date %q", fields[1])}
	}

	value, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Observation{}, &ParseError{Line: line, Reason: fmt.Sprintf("non-numeric value %q", fields[3])}
	}

	return Observation{
		Station: fields[0],
		Date:    fields[1],
		Element: Element(fields[2]),
		Value:   value,
		MFlag:   fields[4],
		QFlag:   fields[5],
		SFlag:   fields[6],
		ObsTime: fields[7],
	}, nil
}

func isDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Keep reports whether an observation passed quality assurance.
func Keep(o Observation) bool {
	return o.QFlag == ""
}
