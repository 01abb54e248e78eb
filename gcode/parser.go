package gcode

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	rx      = regexp.MustCompile(`^([A-Z][+\-]?[0-9.]+)+$`)
	rxSplit = regexp.MustCompile(`[A-Z][+\-]?[0-9.]+`)
	rxParen = regexp.MustCompile(`\([^)]*\)`)
)

// StripComments removes `;` line comments and `( ... )` inline comments.
// Runs of whitespace left behind collapse to a single space.
func StripComments(s string) string {
	s = strings.SplitN(s, ";", 2)[0]
	s = rxParen.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ParseLine parses a single line of plain G-code into a Block.
//
// Comments are ignored; an empty or comment-only line returns a nil Block.
// Lines that are not plain word/number pairs (expressions, system commands)
// return an error.
func ParseLine(line string) (Block, error) {
	s := StripComments(line)
	s = strings.Replace(s, " ", "", -1)
	s = strings.Replace(s, "\t", "", -1)
	s = strings.ToUpper(s)

	if s == "" {
		return nil, nil
	}

	if !rx.MatchString(s) {
		return nil, errors.New("invalid or unhandled line: " + s)
	}

	codes := rxSplit.FindAllString(s, -1)
	res := make(Block, len(codes))

	for i, c := range codes {
		arg, err := strconv.ParseFloat(c[1:], 64)
		if err != nil {
			return nil, err
		}
		res[i] = Word{W: c[0], Arg: arg}
	}

	return res, nil
}
