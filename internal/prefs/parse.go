package prefs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// toggleMarker introduces the toggle list. Workers print the list twice;
	// only the second copy is parsed.
	toggleMarker = "==== Toggles: ===="

	// regexRuleID marks regex-based rules, which cannot be toggled.
	regexRuleID = "[regex]"
)

var togglePattern = regexp.MustCompile(`- \[.\] ([^\s+]+)\s+(.+)$`)

// ErrNoToggles is returned when the output never reaches the second toggle marker.
var ErrNoToggles = errors.New("introspection output has no toggle section")

// Table maps a toggle identifier to its human-readable description.
type Table map[string]string

// Clone returns a copy that callers may mutate.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Parse reads introspection output and returns the toggle table.
func Parse(r io.Reader) (Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	p := newParser()
	for sc.Scan() {
		if p.feed(sc.Text()) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Table{}, fmt.Errorf("read introspection output: %w", err)
	}
	return p.result()
}

type parser struct {
	markers int
	table   Table
}

func newParser() *parser {
	return &parser{table: make(Table)}
}

// feed consumes one line and reports whether parsing is finished.
func (p *parser) feed(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	if p.markers < 2 {
		if line == toggleMarker {
			p.markers++
		}
		return false
	}

	m := togglePattern.FindStringSubmatch(line)
	if m == nil {
		return true
	}
	if m[1] != regexRuleID {
		p.table[m[1]] = m[2]
	}
	return false
}

func (p *parser) result() (Table, error) {
	if p.markers < 2 {
		return Table{}, ErrNoToggles
	}
	return p.table, nil
}
