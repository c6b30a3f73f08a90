package runner

import "strings"

// NormalizeOutput drops trailing blanks on every line and trailing newlines at the end.
// CRLF line endings are treated as LF.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\f\v")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// OutputsMatch compares program output with the expected answer.
func OutputsMatch(actual, expected string, exact bool) bool {
	if exact {
		return actual == expected
	}
	return NormalizeOutput(actual) == NormalizeOutput(expected)
}
