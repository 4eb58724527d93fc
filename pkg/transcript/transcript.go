// Package transcript extracts device facts from a session transcript with
// fixed marker/position matchers that mirror IOS "show version" output.
package transcript

import (
	"strings"
)

const (
	FieldVersion = "version"
	FieldSerial  = "serial"
)

// Matcher pulls one field out of a transcript line.
type Matcher interface {
	// Match returns the field value and true when line carries the field.
	Match(line string) (string, bool)
	Name() string
}

// TokenMatcher selects lines containing Marker and returns the whitespace
// separated token at Index with Trim characters removed.
type TokenMatcher struct {
	Field  string
	Marker string
	Index  int
	Trim   string
}

func (m TokenMatcher) Name() string { return m.Field }

func (m TokenMatcher) Match(line string) (string, bool) {
	if !strings.Contains(line, m.Marker) {
		return "", false
	}
	words := strings.Fields(line)
	if m.Index >= len(words) {
		return "", false
	}
	value := words[m.Index]
	if m.Trim != "" {
		value = strings.ReplaceAll(value, m.Trim, "")
	}
	return value, value != ""
}

// VersionMatcher reads the release from the software banner, e.g.
// "Cisco IOS Software, C2900 Software (...), Version 15.1(4)M4, RELEASE ..." -> 15.1(4)M4.
var VersionMatcher = TokenMatcher{Field: FieldVersion, Marker: "Cisco IOS Software", Index: 7, Trim: ","}

// SerialMatcher reads the chassis serial, e.g. "Processor board ID FTX1628838P".
var SerialMatcher = TokenMatcher{Field: FieldSerial, Marker: "Processor board", Index: 3}

// Parser applies its matchers to every line. A line is claimed by the first
// matcher that accepts it and each field keeps its first value.
type Parser struct {
	matchers []Matcher
}

func NewParser() *Parser {
	p := &Parser{}
	p.Register(VersionMatcher)
	p.Register(SerialMatcher)
	return p
}

// Register appends a matcher to the chain.
func (p *Parser) Register(m Matcher) {
	p.matchers = append(p.matchers, m)
}

// Fields returns the values found in text keyed by matcher name. Missing
// markers simply leave their field out.
func (p *Parser) Fields(text string) map[string]string {
	fields := make(map[string]string, len(p.matchers))
	for _, line := range SplitLines(text) {
		for _, m := range p.matchers {
			value, ok := m.Match(line)
			if !ok {
				continue
			}
			if _, seen := fields[m.Name()]; !seen {
				fields[m.Name()] = value
			}
			break
		}
	}
	return fields
}

// Info is the composite facts line of one device.
type Info struct {
	Name    string
	Version string
	Serial  string
}

// Line renders name[,version][,serial].
func (i Info) Line() string {
	parts := []string{i.Name}
	if i.Version != "" {
		parts = append(parts, i.Version)
	}
	if i.Serial != "" {
		parts = append(parts, i.Serial)
	}
	return strings.Join(parts, ",")
}

// Parse runs the default matchers over text.
func Parse(name, text string) Info {
	fields := NewParser().Fields(text)
	return Info{Name: name, Version: fields[FieldVersion], Serial: fields[FieldSerial]}
}

// SplitLines breaks text on \n, \r\n or a lone \r. Empty lines in the middle
// are kept; a trailing terminator does not produce an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
