package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputType names the fence holding a program's syntax tree.
type InputType string

const (
	InputTypeTree InputType = "tree"
)

// AssertionType names a fence that checks the compiler's behaviour.
type AssertionType string

const (
	AssertionTypeDiagnostics AssertionType = "diagnostics"
	AssertionTypeExitCode    AssertionType = "exit-code"
	AssertionTypeOutput      AssertionType = "output"
	AssertionTypeSymbols     AssertionType = "symbols"
)

// stdinFence holds bytes fed to the program's getint/getchar calls.
const stdinFence = "input"

type Assertion struct {
	Type    AssertionType
	Content string // fence body without trailing newlines
}

// TestCase is one "Test: name" section of a suite.
type TestCase struct {
	Name       string
	Input      string // the tree, already checked to parse
	InputType  InputType
	InputData  string // stdin, verbatim
	Assertions []Assertion
}

const testHeadingPrefix = "Test: "

type suiteReader struct {
	source  []byte
	cases   []TestCase
	current *TestCase
}

// ExtractTestCases reads a Markdown suite. Each heading starting with
// "Test: " opens a case made of one tree fence, an optional input fence
// and at least one assertion fence. Untagged fences are prose.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	r := &suiteReader{source: []byte(markdownContent)}
	doc := goldmark.New().Parser().Parse(text.NewReader(r.source))

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var err error
		switch n := node.(type) {
		case *ast.Heading:
			err = r.heading(n)
		case *ast.FencedCodeBlock:
			err = r.fence(n)
		}
		if err != nil {
			return ast.WalkStop, err
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return r.cases, nil
}

func (r *suiteReader) heading(n *ast.Heading) error {
	title := plainText(n, r.source)
	name, ok := strings.CutPrefix(title, testHeadingPrefix)
	if !ok {
		return nil
	}
	if err := r.finish(); err != nil {
		return err
	}
	r.current = &TestCase{Name: name, Assertions: []Assertion{}}
	return nil
}

// finish validates and records the open case, if any.
func (r *suiteReader) finish() error {
	tc := r.current
	if tc == nil {
		return nil
	}
	r.current = nil
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no input fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	r.cases = append(r.cases, *tc)
	return nil
}

func (r *suiteReader) fence(n *ast.FencedCodeBlock) error {
	lang := string(n.Language(r.source))
	if lang == "" {
		return nil
	}
	line := fenceLine(n, r.source)
	known := lang == string(InputTypeTree) || lang == stdinFence || isAssertion(lang)

	tc := r.current
	if tc == nil {
		if known {
			return fmt.Errorf("line %d: %s fence found outside of test case", line, lang)
		}
		return fmt.Errorf("line %d: unknown fence language '%s' found outside of test case", line, lang)
	}
	if !known {
		return fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, tc.Name)
	}

	body := fenceBody(n, r.source)
	switch {
	case lang == string(InputTypeTree):
		if tc.Input != "" {
			return fmt.Errorf("line %d: multiple input fences found in test '%s'", line, tc.Name)
		}
		if _, err := Parse(body); err != nil {
			return fmt.Errorf("line %d: failed to parse tree in test '%s': %w", line, tc.Name, err)
		}
		tc.Input = strings.TrimRight(body, "\n")
		tc.InputType = InputTypeTree
	case lang == stdinFence:
		if tc.InputData != "" {
			return fmt.Errorf("line %d: multiple input fences found in test '%s'", line, tc.Name)
		}
		tc.InputData = body
	default:
		tc.Assertions = append(tc.Assertions, Assertion{
			Type:    AssertionType(lang),
			Content: strings.TrimRight(body, "\n"),
		})
	}
	return nil
}

func isAssertion(lang string) bool {
	switch AssertionType(lang) {
	case AssertionTypeDiagnostics, AssertionTypeExitCode, AssertionTypeOutput, AssertionTypeSymbols:
		return true
	}
	return false
}

func plainText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceBody(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// fenceLine is the 1-based line of the fence's first body line.
func fenceLine(n ast.Node, source []byte) int {
	if n.Lines().Len() == 0 {
		return 1
	}
	start := n.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
