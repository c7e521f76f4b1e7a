package main

import (
	"fmt"
	"io"
	"strings"
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one problem found in the program.
type Diagnostic struct {
	Severity Severity
	Line     int
	Col      int
	Msg      string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("Line %d, %d : %s : %s", d.Line, d.Col, d.Severity, d.Msg)
}

// Diagnostics collects problems in the order they were found. Reporting never
// stops analysis; any error makes the run fail.
type Diagnostics struct {
	Items  []Diagnostic
	failed bool
}

func (ds *Diagnostics) Errorf(node *Node, format string, args ...any) {
	ds.add(SeverityError, node, fmt.Sprintf(format, args...))
	ds.failed = true
}

func (ds *Diagnostics) Warnf(node *Node, format string, args ...any) {
	ds.add(SeverityWarning, node, fmt.Sprintf(format, args...))
}

func (ds *Diagnostics) add(sev Severity, node *Node, msg string) {
	d := Diagnostic{Severity: sev, Msg: msg}
	if node != nil {
		d.Line = node.Line
		d.Col = node.Col
	}
	ds.Items = append(ds.Items, d)
}

// HasErrors reports whether any error was reported since the last Reset.
func (ds *Diagnostics) HasErrors() bool {
	return ds.failed
}

func (ds *Diagnostics) Reset() {
	ds.Items = nil
	ds.failed = false
}

func (ds *Diagnostics) String() string {
	var sb strings.Builder
	for _, d := range ds.Items {
		sb.WriteString(d.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteTo writes one diagnostic per line.
func (ds *Diagnostics) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, ds.String())
	return int64(n), err
}
