package utils

import (
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
)

// SplitCommandLine splits an interactive input line into words using
// shell quoting rules, so a quoted value like `PUT city "new york"`
// stays one argument.
func SplitCommandLine(line string) ([]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrap(err, "parse command line")
	}
	if len(words) == 0 {
		return nil, errors.New("empty command")
	}
	return words, nil
}
