package format

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/errors"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

// Format renders a unit back to SimpleIR text, appending to b. The output
// parses back to the same unit.
func Format(ctx context.Context, b []byte, u *ir.Unit) (_ []byte, err error) {
	for i, f := range u.Funcs {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func formatFunc(ctx context.Context, b []byte, f *ir.Func) ([]byte, error) {
	b = fmt.Appendf(b, "func %s(%s)\n", f.Name, strings.Join(f.Params, ", "))

	if len(f.Locals) != 0 {
		b = fmt.Appendf(b, "    vars %s\n", strings.Join(f.Locals, ", "))
	}

	for i, x := range f.Code {
		q, err := formatInstr(x)
		if err != nil {
			return nil, errors.Wrap(err, "instruction %d", i)
		}

		b = append(b, q...)
		b = append(b, '\n')
	}

	return b, nil
}

func formatInstr(x ir.Instr) (string, error) {
	switch x := x.(type) {
	case ir.Assign:
		return fmt.Sprintf("    %s = %s", x.Dest, op(x.Src)), nil
	case ir.BinOp:
		return fmt.Sprintf("    %s = %s %s %s", x.Dest, op(x.Left), x.Op, op(x.Right)), nil
	case ir.Deref:
		return fmt.Sprintf("    %s = *%s", x.Dest, x.Ptr), nil
	case ir.Ref:
		return fmt.Sprintf("    %s = &%s", x.Dest, x.Var), nil
	case ir.Store:
		return fmt.Sprintf("    *%s = %s", x.Ptr, op(x.Src)), nil
	case ir.Label:
		return x.Name + ":", nil
	case ir.Goto:
		return "    goto " + x.Label, nil
	case ir.IfGoto:
		return fmt.Sprintf("    if %s %s %s goto %s", op(x.Left), x.Cond, op(x.Right), x.Label), nil
	case ir.Call:
		call := fmt.Sprintf("call %s(%s)", x.Func, strings.Join(x.Args, ", "))
		if x.Dest != "" {
			return fmt.Sprintf("    %s = %s", x.Dest, call), nil
		}

		return "    " + call, nil
	case ir.Ret:
		return "    return " + op(x.Value), nil
	}

	return "", errors.New("unsupported instruction: %T", x)
}

func op(o ir.Operand) string {
	if o.IsLit() {
		return fmt.Sprintf("%d", o.Value)
	}

	return o.Name
}
