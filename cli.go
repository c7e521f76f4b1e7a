package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Exit statuses.
const (
	exitOK      = 0
	exitUsage   = 1
	exitInvalid = 2
)

// entryEnv overrides the symbol main is emitted under.
const entryEnv = "TPCC_ENTRY"

type cli struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func showUsage(w io.Writer) {
	fmt.Fprintf(w, `tpcc - semantic analyzer and x86-64 code generator for TPC syntax trees

Usage:
    tpcc <command> [arguments]

Commands:
    build <tree>    Analyze a syntax tree and write NASM assembly
    run <tree>      Build, assemble with nasm, link with ld and execute
    check <tree>    Analyze a syntax tree and report problems
    symbols <tree>  Print the symbol tables of a syntax tree
    tree <tree>     Print a syntax tree as an outline
    help            Show this help message

Examples:
    tpcc build -o prog.asm prog.tree
    tpcc check prog.tree
    TPCC_ENTRY=main tpcc build prog.tree

Use "tpcc <command> -h" for more information about a command.
`)
}

func (c *cli) flagSet(name, usage, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: tpcc %s\n", usage)
		fmt.Fprintf(c.stderr, "%s\n\n", summary)
		fmt.Fprintf(c.stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// treeArg parses flags and returns the single tree file argument.
func (c *cli) treeArg(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(c.stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		return "", false
	}
	return fs.Arg(0), true
}

func (c *cli) entry() string {
	if e := c.getenv(entryEnv); e != "" {
		return e
	}
	return DefaultEntry
}

// compileFile reads and compiles a tree file, printing its diagnostics.
func (c *cli) compileFile(filename string, verbose bool) (*Compilation, bool) {
	if verbose {
		fmt.Fprintf(c.stdout, "Compiling %s...\n", filename)
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error reading file %s: %v\n", filename, err)
		return nil, false
	}
	comp, err := Compile(string(src), c.entry())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error loading tree %s: %v\n", filename, err)
		return nil, false
	}
	comp.Diags.WriteTo(c.stderr)
	if verbose {
		fmt.Fprintf(c.stdout, "%d global(s), %d function(s), %d diagnostic(s)\n",
			len(comp.Env.Globals), len(comp.Env.Functions), len(comp.Diags.Items))
	}
	return comp, true
}

func outputPath(filename, output, ext string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// writeLocked writes data to path while holding path.lock, so concurrent
// builds of the same output never interleave.
func writeLocked(path string, data []byte) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *cli) buildCommand(args []string) int {
	fs := c.flagSet("build", "build [-o output] [-v] <tree>", "Analyze a syntax tree and write NASM assembly")
	output := fs.String("o", "", "Output file path (default: <tree>.asm)")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	filename, ok := c.treeArg(fs, args)
	if !ok {
		return exitUsage
	}

	comp, ok := c.compileFile(filename, *verbose)
	if !ok {
		return exitUsage
	}
	outputFile := outputPath(filename, *output, ".asm")
	if err := writeLocked(outputFile, []byte(comp.Asm)); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(c.stdout, "Generated %s (%d bytes)\n", outputFile, len(comp.Asm))

	if comp.Failed() {
		return exitInvalid
	}
	return exitOK
}

func (c *cli) runCommand(args []string) int {
	fs := c.flagSet("run", "run [-v] <tree>", "Build, assemble with nasm, link with ld and execute")
	verbose := fs.Bool("v", false, "Show verbose compilation details")
	filename, ok := c.treeArg(fs, args)
	if !ok {
		return exitUsage
	}

	comp, ok := c.compileFile(filename, *verbose)
	if !ok {
		return exitUsage
	}
	if comp.Failed() {
		fmt.Fprintf(c.stderr, "Compilation failed\n")
		return exitInvalid
	}

	dir, err := os.MkdirTemp("", "tpcc-run-")
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer os.RemoveAll(dir)

	exe, err := assemble(dir, comp.Asm, c.entry())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitUsage
	}
	if *verbose {
		fmt.Fprintf(c.stdout, "Executing %s...\n", exe)
	}

	cmd := exec.Command(exe)
	cmd.Stdin = os.Stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(c.stderr, "Execution failed: %v\n", err)
		return exitUsage
	}
	return exitOK
}

// assemble turns generated assembly into an executable with nasm and ld.
func assemble(dir, asm, entry string) (string, error) {
	src := filepath.Join(dir, "prog.asm")
	obj := filepath.Join(dir, "prog.o")
	exe := filepath.Join(dir, "prog")
	if err := os.WriteFile(src, []byte(asm), 0644); err != nil {
		return "", err
	}
	steps := [][]string{
		{"nasm", "-f", "elf64", "-o", obj, src},
		{"ld", "-e", entry, "-o", exe, obj},
	}
	for _, step := range steps {
		out, err := exec.Command(step[0], step[1:]...).CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("%s failed: %v\nOutput: %s", step[0], err, out)
		}
	}
	return exe, nil
}

func (c *cli) checkCommand(args []string) int {
	fs := c.flagSet("check", "check [-v] <tree>", "Analyze a syntax tree and report problems")
	verbose := fs.Bool("v", false, "Show verbose checking details")
	filename, ok := c.treeArg(fs, args)
	if !ok {
		return exitUsage
	}

	comp, ok := c.compileFile(filename, *verbose)
	if !ok {
		return exitUsage
	}
	if comp.Failed() {
		return exitInvalid
	}
	fmt.Fprintf(c.stdout, "%s: no errors found\n", filename)
	if *verbose {
		fmt.Fprintf(c.stdout, "Tree: %s\n", ToSExpr(comp.Tree))
	}
	return exitOK
}

func (c *cli) symbolsCommand(args []string) int {
	fs := c.flagSet("symbols", "symbols <tree>", "Print the symbol tables of a syntax tree")
	filename, ok := c.treeArg(fs, args)
	if !ok {
		return exitUsage
	}
	comp, ok := c.compileFile(filename, false)
	if !ok {
		return exitUsage
	}
	comp.Env.Dump(c.stdout)
	if comp.Failed() {
		return exitInvalid
	}
	return exitOK
}

func (c *cli) treeCommand(args []string) int {
	fs := c.flagSet("tree", "tree <tree>", "Print a syntax tree as an outline")
	filename, ok := c.treeArg(fs, args)
	if !ok {
		return exitUsage
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error reading file %s: %v\n", filename, err)
		return exitUsage
	}
	tree, err := LoadTree(string(src))
	if err != nil {
		fmt.Fprintf(c.stderr, "Error loading tree %s: %v\n", filename, err)
		return exitUsage
	}
	PrintTree(c.stdout, tree)
	return exitOK
}

func (c *cli) run(args []string) int {
	if len(args) < 1 {
		showUsage(c.stderr)
		return exitUsage
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "build":
		return c.buildCommand(rest)
	case "run":
		return c.runCommand(rest)
	case "check":
		return c.checkCommand(rest)
	case "symbols":
		return c.symbolsCommand(rest)
	case "tree":
		return c.treeCommand(rest)
	case "help", "-h", "--help":
		showUsage(c.stdout)
		return exitOK
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n\n", command)
		showUsage(c.stderr)
		return exitUsage
	}
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	os.Exit(c.run(os.Args[1:]))
}
