// Package utils holds small helpers shared by the commands and pipes.
package utils

import "github.com/apex/log/handlers/cli"

var normalPadding = cli.Default.Padding

// Indent indents apex log line to supplied level
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}

// Plural returns singular when n is one and plural otherwise.
func Plural(n int64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
