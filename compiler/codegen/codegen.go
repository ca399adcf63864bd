package codegen

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

type (
	Compiler struct{}

	// funContext carries one function's emission state. It is built per
	// function and passed by value chains, never shared across functions.
	funContext struct {
		*ir.Func

		symtab map[string]int // name -> slot index

		retLabel string // shared epilogue label, "" when the single return falls through
	}
)

// SysV AMD64 integer argument registers, in order.
var argRegs = [6]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

var jmps = map[ir.Cond]string{
	ir.Eq: "je",
	ir.Ne: "jne",
	ir.Lt: "jl",
	ir.Le: "jle",
	ir.Gt: "jg",
	ir.Ge: "jge",
}

func New() *Compiler {
	return &Compiler{}
}

// CompileUnit lowers every function of the unit to AT&T x86-64 assembly,
// appending to b. Label resolution is left to the assembler; each function
// is validated before any of its text is emitted.
func (c *Compiler) CompileUnit(ctx context.Context, b []byte, u *ir.Unit) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "codegen: compile unit", "name", u.Name)
	defer tr.Finish("err", &err)

	b = fmt.Appendf(b, "\t.file\t%q\n\t.section .note.GNU-stack,\"\",@progbits\n\t.text\n", u.Name)

	for _, f := range u.Funcs {
		b = append(b, '\n')

		b, err = c.compileFunc(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func (c *Compiler) compileFunc(ctx context.Context, b []byte, fn *ir.Func) (_ []byte, err error) {
	tr := tlog.SpanFromContext(ctx)

	f := &funContext{Func: fn}

	f.symtab, err = fn.Symtab()
	if err != nil {
		return nil, err
	}

	_, err = fn.Labels()
	if err != nil {
		return nil, err
	}

	err = f.checkRefs()
	if err != nil {
		return nil, err
	}

	if returnsJumping(fn.Code) {
		f.retLabel = fmt.Sprintf(".L%s.ret", fn.Name)
	}

	tr.V("symtab").Printw("function frame", "name", fn.Name, "symtab", f.symtab)

	b = fmt.Appendf(b, ".globl %s\n.type %s, @function\n%s:\n", fn.Name, fn.Name, fn.Name)

	// prologue: save caller's frame, establish ours, save the one
	// callee-owned register the body clobbers
	b = append(b, "\tpushq\t%rbp\n\tmovq\t%rsp, %rbp\n\tpush\t%rbx\n"...)

	b = c.emitFrame(b, f)
	b = c.emitParams(b, f)

	for i, x := range fn.Code {
		b, err = c.emitInstr(b, f, i, x)
		if err != nil {
			return nil, errors.Wrap(err, "instruction %d", i)
		}
	}

	if fallsOff(fn.Code) {
		b = append(b, "\tmov\t$0, %rax\n"...)
	}

	if f.retLabel != "" {
		b = fmt.Appendf(b, "%s:\n", f.retLabel)
	}

	b = append(b, "\tpop\t%rbx\n\tmov\t%rbp, %rsp\n\tpop\t%rbp\n\tret\n"...)

	return b, nil
}

// emitFrame reserves stack space for the variable slots. The reservation is
// kept at 8 mod 16 so that, together with the two prologue pushes and the
// return address, %rsp is 16-byte aligned at every call site.
func (c *Compiler) emitFrame(b []byte, f *funContext) []byte {
	space := 8 * len(f.symtab)
	space += (space + 8) % 16

	return fmt.Appendf(b, "\tsub\t$%d, %%rsp\n", space)
}

// emitParams moves incoming arguments into their slots: the first six from
// the argument registers, the rest from the caller's frame above the saved
// %rbp and return address.
func (c *Compiler) emitParams(b []byte, f *funContext) []byte {
	for i, p := range f.Params {
		if i < len(argRegs) {
			b = fmt.Appendf(b, "\tmov\t%s, %d(%%rbp)\n", argRegs[i], f.off(p))
			continue
		}

		b = fmt.Appendf(b, "\tmov\t%d(%%rbp), %%rax\n", 16+8*(i-len(argRegs)))
		b = fmt.Appendf(b, "\tmov\t%%rax, %d(%%rbp)\n", f.off(p))
	}

	return b
}

func (c *Compiler) emitInstr(b []byte, f *funContext, i int, x ir.Instr) ([]byte, error) {
	switch x := x.(type) {
	case ir.Assign:
		b = fmt.Appendf(b, "\tmov\t%s, %%rax\n", f.operand(x.Src))
		b = fmt.Appendf(b, "\tmov\t%%rax, %d(%%rbp)\n", f.off(x.Dest))
	case ir.BinOp:
		return c.emitBinOp(b, f, x)
	case ir.Deref:
		b = fmt.Appendf(b, "\tmov\t%d(%%rbp), %%rax\n", f.off(x.Ptr))
		b = append(b, "\tmov\t(%rax), %rbx\n"...)
		b = fmt.Appendf(b, "\tmov\t%%rbx, %d(%%rbp)\n", f.off(x.Dest))
	case ir.Ref:
		b = append(b, "\tmov\t%rbp, %rax\n"...)
		b = fmt.Appendf(b, "\tadd\t$%d, %%rax\n", f.off(x.Var))
		b = fmt.Appendf(b, "\tmov\t%%rax, %d(%%rbp)\n", f.off(x.Dest))
	case ir.Store:
		b = fmt.Appendf(b, "\tmov\t%d(%%rbp), %%rax\n", f.off(x.Ptr))
		b = fmt.Appendf(b, "\tmov\t%s, %%rbx\n", f.operand(x.Src))
		b = append(b, "\tmov\t%rbx, (%rax)\n"...)
	case ir.Label:
		b = fmt.Appendf(b, "%s:\n", x.Name)
	case ir.Goto:
		b = fmt.Appendf(b, "\tjmp\t%s\n", x.Label)
	case ir.IfGoto:
		b = fmt.Appendf(b, "\tmov\t%s, %%rax\n", f.operand(x.Left))
		b = fmt.Appendf(b, "\tcmp\t%s, %%rax\n", f.operand(x.Right))
		b = fmt.Appendf(b, "\t%s\t%s\n", jmps[x.Cond], x.Label)
	case ir.Call:
		return c.emitCall(b, f, x)
	case ir.Ret:
		b = fmt.Appendf(b, "\tmov\t%s, %%rax\n", f.operand(x.Value))

		if i != len(f.Code)-1 {
			b = fmt.Appendf(b, "\tjmp\t%s\n", f.retLabel)
		}
	default:
		return nil, errors.New("unknown instruction %T", x)
	}

	return b, nil
}

func (c *Compiler) emitBinOp(b []byte, f *funContext, x ir.BinOp) ([]byte, error) {
	b = fmt.Appendf(b, "\tmov\t%s, %%rax\n", f.operand(x.Left))
	b = fmt.Appendf(b, "\tmov\t%s, %%rbx\n", f.operand(x.Right))

	switch x.Op {
	case ir.Add:
		b = append(b, "\tadd\t%rbx, %rax\n"...)
	case ir.Sub:
		b = append(b, "\tsub\t%rbx, %rax\n"...)
	case ir.Mul:
		b = append(b, "\timul\t%rbx, %rax\n"...)
	case ir.Div:
		b = append(b, "\tcqto\n\tidiv\t%rbx\n"...)
	case ir.Mod:
		b = append(b, "\tcqto\n\tidiv\t%rbx\n\tmov\t%rdx, %rax\n"...)
	default:
		return nil, errors.New("unknown operator %q", x.Op)
	}

	b = fmt.Appendf(b, "\tmov\t%%rax, %d(%%rbp)\n", f.off(x.Dest))

	return b, nil
}

// emitCall places the first six arguments in registers and pushes the rest
// in reverse so the callee sees them in declaration order. The caller
// reclaims the spilled words right after the call returns.
func (c *Compiler) emitCall(b []byte, f *funContext, x ir.Call) ([]byte, error) {
	for i, a := range x.Args {
		if i == len(argRegs) {
			break
		}

		b = fmt.Appendf(b, "\tmov\t%d(%%rbp), %s\n", f.off(a), argRegs[i])
	}

	for i := len(x.Args) - 1; i >= len(argRegs); i-- {
		b = fmt.Appendf(b, "\tpush\t%d(%%rbp)\n", f.off(x.Args[i]))
	}

	b = fmt.Appendf(b, "\tcall\t%s\n", x.Func)

	if spill := len(x.Args) - len(argRegs); spill > 0 {
		b = fmt.Appendf(b, "\tadd\t$%d, %%rsp\n", 8*spill)
	}

	if x.Dest != "" {
		b = fmt.Appendf(b, "\tmov\t%%rax, %d(%%rbp)\n", f.off(x.Dest))
	}

	return b, nil
}

// off returns the frame offset of a declared variable. Identifiers are
// validated by checkRefs before emission starts.
func (f *funContext) off(name string) int {
	slot, ok := f.symtab[name]
	if !ok {
		panic("undefined variable: " + name)
	}

	return -8 * (slot + 1)
}

func (f *funContext) operand(o ir.Operand) string {
	if o.IsLit() {
		return fmt.Sprintf("$%d", o.Value)
	}

	return fmt.Sprintf("%d(%%rbp)", f.off(o.Name))
}

// checkRefs rejects any identifier not declared as a param or local, before
// a single byte of the function is emitted.
func (f *funContext) checkRefs() error {
	for i, x := range f.Code {
		for _, name := range refs(x) {
			if _, ok := f.symtab[name]; !ok {
				return errors.New("instruction %d: undefined variable %q", i, name)
			}
		}
	}

	return nil
}

// refs lists the variable identifiers an instruction touches.
func refs(x ir.Instr) (names []string) {
	add := func(name string) {
		if name != "" {
			names = append(names, name)
		}
	}
	op := func(o ir.Operand) {
		add(o.Name)
	}

	switch x := x.(type) {
	case ir.Assign:
		add(x.Dest)
		op(x.Src)
	case ir.BinOp:
		add(x.Dest)
		op(x.Left)
		op(x.Right)
	case ir.Deref:
		add(x.Dest)
		add(x.Ptr)
	case ir.Ref:
		add(x.Dest)
		add(x.Var)
	case ir.Store:
		add(x.Ptr)
		op(x.Src)
	case ir.IfGoto:
		op(x.Left)
		op(x.Right)
	case ir.Call:
		add(x.Dest)
		for _, a := range x.Args {
			add(a)
		}
	case ir.Ret:
		op(x.Value)
	}

	return names
}

// returnsJumping reports whether any return needs to jump to a shared
// epilogue label, that is any return which is not the last instruction.
func returnsJumping(code []ir.Instr) bool {
	for i, x := range code {
		if _, ok := x.(ir.Ret); ok && i != len(code)-1 {
			return true
		}
	}

	return false
}

// fallsOff reports whether control can run past the last instruction. Such
// functions return 0, same as the interpreter.
func fallsOff(code []ir.Instr) bool {
	if len(code) == 0 {
		return true
	}

	switch code[len(code)-1].(type) {
	case ir.Ret, ir.Goto:
		return false
	}

	return true
}
