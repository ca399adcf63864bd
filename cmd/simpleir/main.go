package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler"
	"github.com/Sathvik-P/Compiler/compiler/format"
	"github.com/Sathvik-P/Compiler/compiler/ir"
	"github.com/Sathvik-P/Compiler/compiler/parse"
)

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "lower SimpleIR units to x86-64 assembly",
		Action:      compileAct,
		Args:        cli.Args{},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "interpret a SimpleIR program starting from main",
		Action:      runAct,
		Args:        cli.Args{},
	}

	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "reprint SimpleIR units in canonical form",
		Action:      fmtAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "simpleir",
		Description: "simpleir compiles or interprets SimpleIR programs",
		Commands: []*cli.Command{
			compileCmd,
			runCmd,
			fmtCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) == 0 {
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "read stdin")
		}

		obj, err := compiler.Compile(ctx, "stdin", text)
		if err != nil {
			return errors.Wrap(err, "compile stdin")
		}

		_, err = os.Stdout.Write(obj)

		return err
	}

	for _, a := range c.Args {
		obj, err := compiler.CompileFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		_, err = os.Stdout.Write(obj)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	units, err := parseAll(ctx, c.Args)
	if err != nil {
		return err
	}

	var b []byte

	for _, u := range units {
		b, err = format.Format(ctx, b, u)
		if err != nil {
			return errors.Wrap(err, "format %v", u.Name)
		}
	}

	_, err = os.Stdout.Write(b)

	return err
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	units, err := parseAll(ctx, c.Args)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)

	ret, err := compiler.Run(ctx, units, bufio.NewReader(os.Stdin), w)

	// flush on every exit path, including failed runs with partial output
	e := w.Flush()
	if err == nil {
		err = e
	}

	if err != nil {
		return errors.Wrap(err, "run")
	}

	os.Exit(int(ret))

	return nil
}

// parseAll reads each file as one translation unit, or a single unit from
// stdin when no paths are given.
func parseAll(ctx context.Context, args []string) (units []*ir.Unit, err error) {
	if len(args) == 0 {
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(err, "read stdin")
		}

		u, err := parse.Parse(ctx, "stdin", text)
		if err != nil {
			return nil, errors.Wrap(err, "parse stdin")
		}

		return []*ir.Unit{u}, nil
	}

	for _, a := range args {
		u, err := parse.ParseFile(ctx, a)
		if err != nil {
			return nil, errors.Wrap(err, "parse %v", a)
		}

		units = append(units, u)
	}

	return units, nil
}
