package interp

import (
	"context"
	"fmt"
	"io"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

type (
	// Program links machines and builtins into one callable namespace so
	// calls can dispatch by name regardless of declaration order. Linking
	// happens after every function is built and before anything runs.
	Program struct {
		funcs    map[string]Callable
		machines []*Machine
	}

	// Builtin is an opaque callable outside the IR model.
	Builtin struct {
		Name  string
		NArgs int
		F     func(args []int64) (int64, error)
	}
)

// NewProgram creates a program with the builtins bound to the given
// streams: print_int writes one line per call to w, read_int scans one
// integer from r.
func NewProgram(r io.Reader, w io.Writer) *Program {
	p := &Program{
		funcs: map[string]Callable{},
	}

	p.funcs["print_int"] = Builtin{
		Name:  "print_int",
		NArgs: 1,
		F: func(args []int64) (int64, error) {
			_, err := fmt.Fprintf(w, "%d\n", args[0])

			return 0, err
		},
	}

	p.funcs["read_int"] = Builtin{
		Name: "read_int",
		F: func(args []int64) (int64, error) {
			var v int64

			_, err := fmt.Fscan(r, &v)
			if err != nil {
				return 0, errors.Wrap(err, "read int")
			}

			return v, nil
		},
	}

	return p
}

// AddUnit builds every function of the unit and adds it to the namespace.
func (p *Program) AddUnit(ctx context.Context, u *ir.Unit) error {
	for _, fn := range u.Funcs {
		m, err := Build(ctx, fn)
		if err != nil {
			return errors.Wrap(err, "unit %v", u.Name)
		}

		err = p.Add(m)
		if err != nil {
			return errors.Wrap(err, "unit %v", u.Name)
		}
	}

	return nil
}

func (p *Program) Add(m *Machine) error {
	if _, ok := p.funcs[m.fn.Name]; ok {
		return errors.New("duplicate function %q", m.fn.Name)
	}

	p.funcs[m.fn.Name] = m
	p.machines = append(p.machines, m)

	return nil
}

// Link hands the completed namespace to every machine.
func (p *Program) Link() {
	for _, m := range p.machines {
		m.funcs = p.funcs
	}
}

// Run links the program and applies the entry function. main must exist and
// take no arguments; its return value is the program's exit status.
func (p *Program) Run(ctx context.Context) (ret int64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: run")
	defer tr.Finish("err", &err)

	p.Link()

	m, ok := p.funcs["main"]
	if !ok {
		return 0, errors.New("no main function")
	}

	return m.Apply(ctx, nil)
}

func (b Builtin) Apply(ctx context.Context, args []int64) (int64, error) {
	if len(args) != b.NArgs {
		return 0, errors.New("builtin %v: arity mismatch: called with %d args, want %d", b.Name, len(args), b.NArgs)
	}

	return b.F(args)
}
