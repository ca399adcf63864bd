package codegen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

func compileOne(t *testing.T, f *ir.Func) string {
	t.Helper()

	obj, err := New().CompileUnit(context.Background(), nil, &ir.Unit{Name: "test.ir", Funcs: []*ir.Func{f}})
	require.NoError(t, err)

	t.Logf("asm:\n%s", obj)

	return string(obj)
}

func TestUnitPrologue(t *testing.T) {
	asm := compileOne(t, &ir.Func{
		Name: "main",
		Code: []ir.Instr{ir.Ret{Value: ir.Lit(0)}},
	})

	assert.Contains(t, asm, "\t.file\t\"test.ir\"\n")
	assert.Contains(t, asm, ".section .note.GNU-stack,\"\",@progbits\n")
	assert.Contains(t, asm, "\t.text\n")
	assert.Contains(t, asm, ".globl main\n")
	assert.Contains(t, asm, ".type main, @function\n")
	assert.Contains(t, asm, "main:\n")
}

// The reservation plus the two prologue pushes and the return address must
// leave %rsp 16-byte aligned at every call site, for any slot count.
func TestFrameAlignment(t *testing.T) {
	for k := 0; k <= 9; k++ {
		locals := make([]string, k)
		for i := range locals {
			locals[i] = fmt.Sprintf("v%d", i)
		}

		f := &ir.Func{
			Name:   "f",
			Locals: locals,
			Code:   []ir.Instr{ir.Ret{Value: ir.Lit(0)}},
		}

		asm := compileOne(t, f)

		space := 8 * k
		space += (space + 8) % 16

		assert.Contains(t, asm, fmt.Sprintf("\tsub\t$%d, %%rsp\n", space), "k=%d", k)
		assert.GreaterOrEqual(t, space, 8*k, "k=%d", k)

		// 2 pushes (16) + return address (8) + reservation ≡ 0 mod 16
		assert.Zero(t, (16+8+space)%16, "k=%d", k)
	}
}

func TestParamBinding(t *testing.T) {
	f := &ir.Func{
		Name:   "f",
		Params: []string{"a", "b", "c", "d", "e", "g", "h", "i"},
		Code:   []ir.Instr{ir.Ret{Value: ir.Name("a")}},
	}

	asm := compileOne(t, f)

	for i, reg := range []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"} {
		assert.Contains(t, asm, fmt.Sprintf("\tmov\t%s, %d(%%rbp)\n", reg, -8*(i+1)))
	}

	// 7th and 8th params come from the caller's frame
	assert.Contains(t, asm, "\tmov\t16(%rbp), %rax\n")
	assert.Contains(t, asm, "\tmov\t%rax, -56(%rbp)\n")
	assert.Contains(t, asm, "\tmov\t24(%rbp), %rax\n")
	assert.Contains(t, asm, "\tmov\t%rax, -64(%rbp)\n")
}

func TestCallSpill(t *testing.T) {
	args := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	fn := &ir.Func{
		Name:   "main",
		Locals: append(append([]string{}, args...), "r"),
		Code: []ir.Instr{
			ir.Call{Dest: "r", Func: "sum8", Args: args},
			ir.Ret{Value: ir.Name("r")},
		},
	}

	asm := compileOne(t, fn)

	// slots: a..h at -8..-64, r at -72
	for i, reg := range []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"} {
		assert.Contains(t, asm, fmt.Sprintf("\tmov\t%d(%%rbp), %s\n", -8*(i+1), reg))
	}

	// 8th pushed before 7th so the callee sees them in declaration order
	h := strings.Index(asm, "\tpush\t-64(%rbp)\n")
	g := strings.Index(asm, "\tpush\t-56(%rbp)\n")
	require.Positive(t, h)
	require.Positive(t, g)
	assert.Less(t, h, g)

	// caller reclaims exactly the spilled words
	call := strings.Index(asm, "\tcall\tsum8\n")
	clean := strings.Index(asm, "\tadd\t$16, %rsp\n")
	require.Positive(t, call)
	require.Positive(t, clean)
	assert.Less(t, call, clean)

	assert.Contains(t, asm, "\tmov\t%rax, -72(%rbp)\n")
}

func TestCallNoDest(t *testing.T) {
	fn := &ir.Func{
		Name:   "main",
		Locals: []string{"x"},
		Code: []ir.Instr{
			ir.Assign{Dest: "x", Src: ir.Lit(7)},
			ir.Call{Func: "print_int", Args: []string{"x"}},
			ir.Ret{Value: ir.Lit(0)},
		},
	}

	asm := compileOne(t, fn)

	assert.Contains(t, asm, "\tmov\t-8(%rbp), %rdi\n")
	assert.Contains(t, asm, "\tcall\tprint_int\n")

	// no result move after the call
	after := asm[strings.Index(asm, "\tcall\tprint_int\n"):]
	assert.NotContains(t, after, "\tmov\t%rax, -8(%rbp)\n")
}

func TestArithmetic(t *testing.T) {
	fn := &ir.Func{
		Name:   "f",
		Params: []string{"a", "b"},
		Locals: []string{"q", "r"},
		Code: []ir.Instr{
			ir.BinOp{Dest: "q", Op: ir.Div, Left: ir.Name("a"), Right: ir.Name("b")},
			ir.BinOp{Dest: "r", Op: ir.Mod, Left: ir.Name("a"), Right: ir.Name("b")},
			ir.Ret{Value: ir.Name("q")},
		},
	}

	asm := compileOne(t, fn)

	assert.Contains(t, asm, "\tcqto\n\tidiv\t%rbx\n")
	assert.Contains(t, asm, "\tidiv\t%rbx\n\tmov\t%rdx, %rax\n")
}

func TestPointers(t *testing.T) {
	fn := &ir.Func{
		Name:   "main",
		Locals: []string{"x", "p", "y"},
		Code: []ir.Instr{
			ir.Ref{Dest: "p", Var: "x"},
			ir.Store{Ptr: "p", Src: ir.Lit(42)},
			ir.Deref{Dest: "y", Ptr: "p"},
			ir.Ret{Value: ir.Name("y")},
		},
	}

	asm := compileOne(t, fn)

	// p = &x: frame base plus x's offset
	assert.Contains(t, asm, "\tmov\t%rbp, %rax\n\tadd\t$-8, %rax\n\tmov\t%rax, -16(%rbp)\n")
	// *p = 42
	assert.Contains(t, asm, "\tmov\t-16(%rbp), %rax\n\tmov\t$42, %rbx\n\tmov\t%rbx, (%rax)\n")
	// y = *p
	assert.Contains(t, asm, "\tmov\t-16(%rbp), %rax\n\tmov\t(%rax), %rbx\n\tmov\t%rbx, -24(%rbp)\n")
}

func TestBranches(t *testing.T) {
	fn := &ir.Func{
		Name:   "f",
		Params: []string{"n"},
		Code: []ir.Instr{
			ir.Label{Name: "loop"},
			ir.IfGoto{Cond: ir.Le, Left: ir.Name("n"), Right: ir.Lit(1), Label: "done"},
			ir.Goto{Label: "loop"},
			ir.Label{Name: "done"},
			ir.Ret{Value: ir.Name("n")},
		},
	}

	asm := compileOne(t, fn)

	assert.Contains(t, asm, "loop:\n")
	assert.Contains(t, asm, "\tmov\t-8(%rbp), %rax\n\tcmp\t$1, %rax\n\tjle\tdone\n")
	assert.Contains(t, asm, "\tjmp\tloop\n")
	assert.Contains(t, asm, "done:\n")
}

// A return in the middle of the body must route through a single shared
// epilogue instead of emitting its own.
func TestSharedEpilogue(t *testing.T) {
	fn := &ir.Func{
		Name:   "f",
		Params: []string{"n"},
		Code: []ir.Instr{
			ir.IfGoto{Cond: ir.Le, Left: ir.Name("n"), Right: ir.Lit(1), Label: "base"},
			ir.Ret{Value: ir.Name("n")},
			ir.Label{Name: "base"},
			ir.Ret{Value: ir.Lit(1)},
		},
	}

	asm := compileOne(t, fn)

	assert.Contains(t, asm, "\tjmp\t.Lf.ret\n")
	assert.Contains(t, asm, ".Lf.ret:\n")
	assert.Equal(t, 1, strings.Count(asm, "\tret\n"))
	assert.Equal(t, 1, strings.Count(asm, "\tpop\t%rbp\n"))
}

func TestFailsBeforeEmission(t *testing.T) {
	c := New()

	for _, tc := range []struct {
		name string
		f    *ir.Func
		msg  string
	}{
		{
			name: "undefined label",
			f: &ir.Func{
				Name: "f",
				Code: []ir.Instr{
					ir.Goto{Label: "nowhere"},
					ir.Ret{Value: ir.Lit(0)},
				},
			},
			msg: "undefined label",
		},
		{
			name: "undefined variable",
			f: &ir.Func{
				Name: "f",
				Code: []ir.Instr{
					ir.Assign{Dest: "x", Src: ir.Lit(1)},
					ir.Ret{Value: ir.Lit(0)},
				},
			},
			msg: "undefined variable",
		},
		{
			name: "duplicate declaration",
			f: &ir.Func{
				Name:   "f",
				Params: []string{"x"},
				Locals: []string{"x"},
				Code:   []ir.Instr{ir.Ret{Value: ir.Name("x")}},
			},
			msg: "duplicate variable",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			obj, err := c.compileFunc(context.Background(), nil, tc.f)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.Empty(t, obj, "no text may be emitted for a rejected function")
		})
	}
}

func TestEpilogue(t *testing.T) {
	asm := compileOne(t, &ir.Func{
		Name: "main",
		Code: []ir.Instr{ir.Ret{Value: ir.Lit(3)}},
	})

	assert.Contains(t, asm, "\tmov\t$3, %rax\n\tpop\t%rbx\n\tmov\t%rbp, %rsp\n\tpop\t%rbp\n\tret\n")
}
