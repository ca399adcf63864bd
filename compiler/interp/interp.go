package interp

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

type (
	// Callable is anything a Call instruction can dispatch to: a built
	// Machine or a builtin. Arguments are already evaluated.
	Callable interface {
		Apply(ctx context.Context, args []int64) (int64, error)
	}

	// Machine is one function compiled for interpretation: a flat array of
	// records dispatched by a single loop, with identifiers resolved to
	// arena slots and labels resolved to program counters at build time.
	// Build/link state is reused across calls; each Apply gets fresh
	// storage, so recursion works without a dedicated call stack.
	Machine struct {
		fn    *ir.Func
		nvars int

		code []code

		funcs map[string]Callable // set by link
	}

	opcode int

	// operand is a resolved ir.Operand: a slot index or a literal.
	operand struct {
		slot int // -1 for literals
		lit  int64
	}

	code struct {
		op opcode

		dest int // slot, -1 to discard
		a, b operand

		binop ir.Op
		cond  ir.Cond

		label  string // jump target, resolved into target during build
		target int

		callee string
		args   []int // slots

		pos int // index in ir.Func.Code, for diagnostics
	}
)

const (
	opAssign opcode = iota
	opBin
	opDeref
	opRef
	opStore
	opGoto
	opIfGoto
	opCall
	opRet
)

// Build compiles a function into a Machine. Unresolved identifiers,
// unresolved or duplicate labels and duplicate declarations fail here,
// before anything executes.
func Build(ctx context.Context, fn *ir.Func) (_ *Machine, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: build func", "name", fn.Name)
	defer tr.Finish("err", &err)

	symtab, err := fn.Symtab()
	if err != nil {
		return nil, errors.Wrap(err, "func %v", fn.Name)
	}

	m := &Machine{
		fn:    fn,
		nvars: len(symtab),
	}

	b := builder{symtab: symtab}

	// first pass: labels record the position of the next real instruction,
	// which is what makes forward jumps possible
	labels := map[string]int{}

	for i, x := range fn.Code {
		if l, ok := x.(ir.Label); ok {
			if _, ok := labels[l.Name]; ok {
				return nil, errors.New("func %v: instruction %d: duplicate label %q", fn.Name, i, l.Name)
			}

			labels[l.Name] = len(m.code)

			continue
		}

		c, err := b.compile(i, x)
		if err != nil {
			return nil, errors.Wrap(err, "func %v: instruction %d", fn.Name, i)
		}

		m.code = append(m.code, c)
	}

	// second pass: resolve jumps
	for i := range m.code {
		c := &m.code[i]
		if c.op != opGoto && c.op != opIfGoto {
			continue
		}

		pc, ok := labels[c.label]
		if !ok {
			return nil, errors.New("func %v: instruction %d: undefined label %q", fn.Name, c.pos, c.label)
		}

		c.target = pc
	}

	tr.V("build").Printw("built", "name", fn.Name, "vars", m.nvars, "code", len(m.code), "labels", labels)

	return m, nil
}

type builder struct {
	symtab map[string]int
}

func (b builder) compile(pos int, x ir.Instr) (c code, err error) {
	c.pos = pos

	switch x := x.(type) {
	case ir.Assign:
		c.op = opAssign
		c.dest, err = b.slot(x.Dest)
		c.a = b.operand(x.Src, &err)
	case ir.BinOp:
		c.op = opBin
		c.binop = x.Op
		c.dest, err = b.slot(x.Dest)
		c.a = b.operand(x.Left, &err)
		c.b = b.operand(x.Right, &err)
	case ir.Deref:
		c.op = opDeref
		c.dest, err = b.slot(x.Dest)
		c.a = b.operand(ir.Name(x.Ptr), &err)
	case ir.Ref:
		c.op = opRef
		c.dest, err = b.slot(x.Dest)
		c.a = b.operand(ir.Name(x.Var), &err)
	case ir.Store:
		c.op = opStore
		c.dest, err = b.slot(x.Ptr)
		c.a = b.operand(x.Src, &err)
	case ir.Goto:
		c.op = opGoto
		c.label = x.Label
	case ir.IfGoto:
		c.op = opIfGoto
		c.cond = x.Cond
		c.label = x.Label
		c.a = b.operand(x.Left, &err)
		c.b = b.operand(x.Right, &err)
	case ir.Call:
		c.op = opCall
		c.callee = x.Func
		c.dest = -1

		if x.Dest != "" {
			c.dest, err = b.slot(x.Dest)
		}

		for _, a := range x.Args {
			s, e := b.slot(a)
			if e != nil {
				return c, e
			}

			c.args = append(c.args, s)
		}
	case ir.Ret:
		c.op = opRet
		c.a = b.operand(x.Value, &err)
	default:
		return c, errors.New("unknown instruction %T", x)
	}

	return c, err
}

func (b builder) slot(name string) (int, error) {
	s, ok := b.symtab[name]
	if !ok {
		return 0, errors.New("undefined variable %q", name)
	}

	return s, nil
}

func (b builder) operand(o ir.Operand, errp *error) operand {
	if o.IsLit() {
		return operand{slot: -1, lit: o.Value}
	}

	s, err := b.slot(o.Name)
	if err != nil && *errp == nil {
		*errp = err
	}

	return operand{slot: s}
}

// Apply runs the function over a fresh arena: one zero-initialized slot per
// declared variable, arguments copied into the parameter slots.
func (m *Machine) Apply(ctx context.Context, args []int64) (ret int64, err error) {
	tr := tlog.SpanFromContext(ctx)
	tr.V("calls").Printw("apply", "func", m.fn.Name, "args", args, "from", loc.Caller(1))

	if len(args) != len(m.fn.Params) {
		return 0, errors.New("func %v: arity mismatch: called with %d args, want %d", m.fn.Name, len(args), len(m.fn.Params))
	}

	mem := make([]int64, m.nvars)
	copy(mem, args)

	pc := 0

	for pc < len(m.code) {
		c := &m.code[pc]

		switch c.op {
		case opAssign:
			mem[c.dest] = m.val(mem, c.a)
			pc++
		case opBin:
			v, err := binop(c.binop, m.val(mem, c.a), m.val(mem, c.b))
			if err != nil {
				return 0, errors.Wrap(err, "func %v: instruction %d", m.fn.Name, c.pos)
			}

			mem[c.dest] = v
			pc++
		case opDeref:
			v, err := m.load(mem, mem[c.a.slot])
			if err != nil {
				return 0, errors.Wrap(err, "func %v: instruction %d", m.fn.Name, c.pos)
			}

			mem[c.dest] = v
			pc++
		case opRef:
			mem[c.dest] = int64(c.a.slot)
			pc++
		case opStore:
			addr := mem[c.dest]
			if addr < 0 || addr >= int64(len(mem)) {
				return 0, errors.New("func %v: instruction %d: address %d out of range", m.fn.Name, c.pos, addr)
			}

			mem[addr] = m.val(mem, c.a)
			pc++
		case opGoto:
			pc = c.target
		case opIfGoto:
			if compare(c.cond, m.val(mem, c.a), m.val(mem, c.b)) {
				pc = c.target
			} else {
				pc++
			}
		case opCall:
			f, ok := m.funcs[c.callee]
			if !ok {
				return 0, errors.New("func %v: instruction %d: undefined function %q", m.fn.Name, c.pos, c.callee)
			}

			actuals := make([]int64, len(c.args))
			for i, s := range c.args {
				actuals[i] = mem[s]
			}

			v, err := f.Apply(ctx, actuals)
			if err != nil {
				return 0, errors.Wrap(err, "func %v: instruction %d: call %v", m.fn.Name, c.pos, c.callee)
			}

			if c.dest >= 0 {
				mem[c.dest] = v
			}

			pc++
		case opRet:
			v := m.val(mem, c.a)

			tr.V("calls").Printw("return", "func", m.fn.Name, "value", v)

			return v, nil
		default:
			panic(c.op)
		}
	}

	// fell off the end of the body
	return 0, nil
}

func (m *Machine) val(mem []int64, o operand) int64 {
	if o.slot < 0 {
		return o.lit
	}

	return mem[o.slot]
}

func (m *Machine) load(mem []int64, addr int64) (int64, error) {
	if addr < 0 || addr >= int64(len(mem)) {
		return 0, errors.New("address %d out of range", addr)
	}

	return mem[addr], nil
}

// binop normalizes arithmetic to int64. Go's / and % already truncate
// toward zero with the remainder sign following the dividend, matching
// hardware idiv, so interpreted results agree with generated code
// bit-for-bit including negative operands.
func binop(op ir.Op, a, b int64) (int64, error) {
	switch op {
	case ir.Add:
		return a + b, nil
	case ir.Sub:
		return a - b, nil
	case ir.Mul:
		return a * b, nil
	case ir.Div, ir.Mod:
		if b == 0 {
			return 0, errors.New("division by zero")
		}

		if op == ir.Div {
			return a / b, nil
		}

		return a % b, nil
	}

	return 0, errors.New("unknown operator %q", op)
}

func compare(cond ir.Cond, a, b int64) bool {
	switch cond {
	case ir.Eq:
		return a == b
	case ir.Ne:
		return a != b
	case ir.Lt:
		return a < b
	case ir.Le:
		return a <= b
	case ir.Gt:
		return a > b
	case ir.Ge:
		return a >= b
	}

	panic(cond)
}
