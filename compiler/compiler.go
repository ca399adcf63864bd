package compiler

import (
	"context"
	"io"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler/codegen"
	"github.com/Sathvik-P/Compiler/compiler/interp"
	"github.com/Sathvik-P/Compiler/compiler/ir"
	"github.com/Sathvik-P/Compiler/compiler/parse"
)

func CompileFile(ctx context.Context, name string) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text)
}

// Compile lowers one translation unit of SimpleIR text to x86-64 assembly.
func Compile(ctx context.Context, name string, text []byte) (obj []byte, err error) {
	u, err := parse.Parse(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	obj, err = codegen.New().CompileUnit(ctx, nil, u)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}

	return obj, nil
}

// Run interprets a program assembled from the given units: builds every
// function, links them with the builtins bound to r and w, and applies
// main. The returned value is the program's exit status.
func Run(ctx context.Context, units []*ir.Unit, r io.Reader, w io.Writer) (ret int64, err error) {
	p := interp.NewProgram(r, w)

	for _, u := range units {
		err = p.AddUnit(ctx, u)
		if err != nil {
			return 0, errors.Wrap(err, "build")
		}
	}

	return p.Run(ctx)
}
