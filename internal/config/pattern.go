package config

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// bareFlags matches a source with no body, such as "" or "(?i)".
var bareFlags = regexp.MustCompile(`^(\(\?[a-zA-Z]*\))?$`)

// Pattern is a compiled file name test that round-trips through YAML as its
// source string.
//
// JavaScript style literals such as "/\.css$/i" are accepted and converted to
// the equivalent Go expression.
type Pattern struct {
	*regexp.Regexp
}

// NewPattern compiles expr, accepting either a Go regexp or a /.../flags literal.
func NewPattern(expr string) (*Pattern, error) {
	source := fromLiteral(expr)
	if bareFlags.MatchString(source) {
		return nil, fmt.Errorf("invalid rule test %q: pattern is empty and would match every file", expr)
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid rule test %q: %w", expr, err)
	}
	return &Pattern{Regexp: re}, nil
}

// MustPattern is NewPattern that panics on error, for static defaults.
func MustPattern(expr string) *Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Empty reports whether the pattern has no body and so matches every name.
func (p *Pattern) Empty() bool {
	return p == nil || p.Regexp == nil || bareFlags.MatchString(p.String())
}

func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var expr string
	if err := value.Decode(&expr); err != nil {
		return err
	}
	compiled, err := NewPattern(expr)
	if err != nil {
		return err
	}
	*p = *compiled
	return nil
}

func (p Pattern) MarshalYAML() (any, error) {
	if p.Regexp == nil {
		return "", nil
	}
	return p.String(), nil
}

// fromLiteral turns "/body/flags" into "(?flags)body". Only the i, m and s
// flags carry over; g and u have no meaning for a file name test.
func fromLiteral(expr string) string {
	if len(expr) < 2 || expr[0] != '/' {
		return expr
	}
	end := strings.LastIndex(expr, "/")
	if end == 0 {
		return expr
	}
	body, flags := expr[1:end], expr[end+1:]

	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			goFlags.WriteRune(f)
		}
	}
	if goFlags.Len() == 0 {
		return body
	}
	return "(?" + goFlags.String() + ")" + body
}
