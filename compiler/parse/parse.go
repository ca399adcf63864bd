package parse

import (
	"context"
	"os"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Sathvik-P/Compiler/compiler/ir"
)

type (
	// State parses one translation unit of SimpleIR text.
	State struct {
		name string
		b    []byte

		i    int
		line int

		unit *ir.Unit
		fn   *ir.Func // function being parsed
		body bool     // saw the first instruction, vars no longer allowed
	}

	token struct {
		kind kind
		text string
	}

	kind int
)

const (
	tokNone kind = iota
	tokIdent
	tokNum
	tokPunct
)

func ParseFile(ctx context.Context, name string) (*ir.Unit, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, name, text)
}

// Parse reads one unit of SimpleIR text. The syntax is line oriented: one
// instruction per line, functions opened by a `func name(params)` header
// and closed by the next header or end of input.
func Parse(ctx context.Context, name string, text []byte) (u *ir.Unit, err error) {
	tr := tlog.SpanFromContext(ctx)

	s := &State{
		name: name,
		b:    text,
		unit: &ir.Unit{Name: name},
	}

	for {
		ts, ok, err := s.nextLine()
		if err != nil {
			return nil, errors.Wrap(err, "%v:%d", s.name, s.line)
		}
		if !ok {
			break
		}

		err = s.parseLine(ts)
		if err != nil {
			return nil, errors.Wrap(err, "%v:%d", s.name, s.line)
		}
	}

	if s.fn == nil {
		return nil, errors.New("%v: no functions", s.name)
	}

	tr.V("parse").Printw("parsed unit", "name", name, "funcs", len(s.unit.Funcs))

	return s.unit, nil
}

// nextLine tokenizes the next non-empty line. ok is false at end of input.
func (s *State) nextLine() (ts []token, ok bool, err error) {
	for s.i < len(s.b) {
		s.line++

		ts, err = s.lineTokens()
		if err != nil {
			return nil, false, err
		}

		if len(ts) != 0 {
			return ts, true, nil
		}
	}

	return nil, false, nil
}

func (s *State) lineTokens() (ts []token, err error) {
	for s.i < len(s.b) {
		c := s.b[s.i]

		switch {
		case c == '\n':
			s.i++
			return ts, nil
		case c == ' ' || c == '\t' || c == '\r':
			s.i++
		case c == '#':
			for s.i < len(s.b) && s.b[s.i] != '\n' {
				s.i++
			}
		case isIdent(c) && !isDigit(c):
			st := s.i
			for s.i < len(s.b) && isIdent(s.b[s.i]) {
				s.i++
			}

			ts = append(ts, token{kind: tokIdent, text: string(s.b[st:s.i])})
		case isDigit(c):
			st := s.i
			for s.i < len(s.b) && isDigit(s.b[s.i]) {
				s.i++
			}

			ts = append(ts, token{kind: tokNum, text: string(s.b[st:s.i])})
		case c == '<' || c == '>' || c == '=' || c == '!':
			st := s.i
			s.i++
			if s.i < len(s.b) && s.b[s.i] == '=' {
				s.i++
			}

			ts = append(ts, token{kind: tokPunct, text: string(s.b[st:s.i])})
		case c == '(' || c == ')' || c == ',' || c == ':' ||
			c == '*' || c == '&' || c == '+' || c == '-' || c == '/' || c == '%':
			ts = append(ts, token{kind: tokPunct, text: string(c)})
			s.i++
		default:
			return nil, errors.New("unexpected character %q", c)
		}
	}

	return ts, nil
}

func (s *State) parseLine(ts []token) error {
	t := ts[0]

	if t.kind == tokIdent {
		switch t.text {
		case "func":
			return s.parseFunc(ts[1:])
		case "vars":
			return s.parseVars(ts[1:])
		}
	}

	if s.fn == nil {
		return errors.New("expected func, got %q", t.text)
	}

	s.body = true

	return s.parseInstr(ts)
}

func (s *State) parseFunc(ts []token) error {
	name, ts, err := ident(ts)
	if err != nil {
		return errors.Wrap(err, "func name")
	}

	params, ts, err := s.parseNameList(ts)
	if err != nil {
		return errors.Wrap(err, "params")
	}

	if len(ts) != 0 {
		return errors.New("trailing tokens after func header")
	}

	s.fn = &ir.Func{
		Name:   name,
		Params: params,
	}
	s.body = false

	s.unit.Funcs = append(s.unit.Funcs, s.fn)

	return nil
}

func (s *State) parseVars(ts []token) error {
	if s.fn == nil {
		return errors.New("vars outside a function")
	}
	if s.body {
		return errors.New("vars after the first instruction")
	}

	for {
		name, rest, err := ident(ts)
		if err != nil {
			return err
		}

		s.fn.Locals = append(s.fn.Locals, name)
		ts = rest

		if len(ts) == 0 {
			return nil
		}

		ts, err = punct(ts, ",")
		if err != nil {
			return err
		}
	}
}

func (s *State) parseInstr(ts []token) error {
	t := ts[0]

	switch {
	case t.kind == tokIdent && t.text == "goto":
		name, ts, err := ident(ts[1:])
		if err != nil {
			return errors.Wrap(err, "goto")
		}
		if len(ts) != 0 {
			return errors.New("trailing tokens after goto")
		}

		return s.emit(ir.Goto{Label: name})

	case t.kind == tokIdent && t.text == "if":
		return s.parseIfGoto(ts[1:])

	case t.kind == tokIdent && t.text == "return":
		v, ts, err := operand(ts[1:])
		if err != nil {
			return errors.Wrap(err, "return")
		}
		if len(ts) != 0 {
			return errors.New("trailing tokens after return")
		}

		return s.emit(ir.Ret{Value: v})

	case t.kind == tokIdent && t.text == "call":
		callee, args, err := s.parseCallTail(ts[1:])
		if err != nil {
			return err
		}

		return s.emit(ir.Call{Func: callee, Args: args})

	case t.kind == tokIdent && len(ts) == 2 && ts[1].text == ":":
		return s.emit(ir.Label{Name: t.text})

	case t.kind == tokIdent:
		return s.parseAssign(t.text, ts[1:])

	case t.text == "*":
		return s.parseStore(ts[1:])
	}

	return errors.New("unexpected token %q", t.text)
}

// parseAssign handles every `dest = ...` form: plain assignment, binary
// operation, deref, ref and call.
func (s *State) parseAssign(dest string, ts []token) error {
	ts, err := punct(ts, "=")
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		return errors.New("missing right hand side")
	}

	switch t := ts[0]; {
	case t.text == "*" && t.kind == tokPunct && len(ts) > 1 && ts[1].kind == tokIdent:
		ptr, ts, err := ident(ts[1:])
		if err != nil {
			return err
		}
		if len(ts) != 0 {
			return errors.New("trailing tokens after deref")
		}

		return s.emit(ir.Deref{Dest: dest, Ptr: ptr})

	case t.text == "&":
		src, ts, err := ident(ts[1:])
		if err != nil {
			return err
		}
		if len(ts) != 0 {
			return errors.New("trailing tokens after ref")
		}

		return s.emit(ir.Ref{Dest: dest, Var: src})

	case t.kind == tokIdent && t.text == "call":
		callee, args, err := s.parseCallTail(ts[1:])
		if err != nil {
			return err
		}

		return s.emit(ir.Call{Dest: dest, Func: callee, Args: args})
	}

	left, ts, err := operand(ts)
	if err != nil {
		return err
	}

	if len(ts) == 0 {
		return s.emit(ir.Assign{Dest: dest, Src: left})
	}

	op := ts[0]
	if op.kind != tokPunct {
		return errors.New("operator expected, got %q", op.text)
	}

	switch ir.Op(op.text) {
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Mod:
	default:
		return errors.New("unknown operator %q", op.text)
	}

	right, ts, err := operand(ts[1:])
	if err != nil {
		return err
	}
	if len(ts) != 0 {
		return errors.New("trailing tokens after operation")
	}

	return s.emit(ir.BinOp{Dest: dest, Op: ir.Op(op.text), Left: left, Right: right})
}

func (s *State) parseStore(ts []token) error {
	ptr, ts, err := ident(ts)
	if err != nil {
		return errors.Wrap(err, "store")
	}

	ts, err = punct(ts, "=")
	if err != nil {
		return err
	}

	src, ts, err := operand(ts)
	if err != nil {
		return err
	}
	if len(ts) != 0 {
		return errors.New("trailing tokens after store")
	}

	return s.emit(ir.Store{Ptr: ptr, Src: src})
}

func (s *State) parseIfGoto(ts []token) error {
	left, ts, err := operand(ts)
	if err != nil {
		return errors.Wrap(err, "if")
	}

	if len(ts) == 0 || ts[0].kind != tokPunct {
		return errors.New("comparison expected")
	}

	cond := ir.Cond(ts[0].text)
	switch cond {
	case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
	default:
		return errors.New("unknown comparison %q", ts[0].text)
	}

	right, ts, err := operand(ts[1:])
	if err != nil {
		return errors.Wrap(err, "if")
	}

	ts, err = keyword(ts, "goto")
	if err != nil {
		return err
	}

	name, ts, err := ident(ts)
	if err != nil {
		return errors.Wrap(err, "if target")
	}
	if len(ts) != 0 {
		return errors.New("trailing tokens after if")
	}

	return s.emit(ir.IfGoto{Cond: cond, Left: left, Right: right, Label: name})
}

// parseCallTail parses `callee(arg, ...)` after the call keyword.
func (s *State) parseCallTail(ts []token) (callee string, args []string, err error) {
	callee, ts, err = ident(ts)
	if err != nil {
		return "", nil, errors.Wrap(err, "callee")
	}

	args, ts, err = s.parseNameList(ts)
	if err != nil {
		return "", nil, errors.Wrap(err, "args")
	}

	if len(ts) != 0 {
		return "", nil, errors.New("trailing tokens after call")
	}

	return callee, args, nil
}

// parseNameList parses a parenthesized comma separated identifier list.
func (s *State) parseNameList(ts []token) (names []string, _ []token, err error) {
	ts, err = punct(ts, "(")
	if err != nil {
		return nil, ts, err
	}

	if len(ts) != 0 && ts[0].text == ")" {
		return nil, ts[1:], nil
	}

	for {
		var name string

		name, ts, err = ident(ts)
		if err != nil {
			return nil, ts, err
		}

		names = append(names, name)

		if len(ts) == 0 {
			return nil, ts, errors.New("unclosed name list")
		}

		if ts[0].text == ")" {
			return names, ts[1:], nil
		}

		ts, err = punct(ts, ",")
		if err != nil {
			return nil, ts, err
		}
	}
}

func (s *State) emit(x ir.Instr) error {
	s.fn.Code = append(s.fn.Code, x)

	return nil
}

func ident(ts []token) (string, []token, error) {
	if len(ts) == 0 || ts[0].kind != tokIdent {
		return "", ts, errors.New("identifier expected")
	}

	return ts[0].text, ts[1:], nil
}

func keyword(ts []token, kw string) ([]token, error) {
	if len(ts) == 0 || ts[0].kind != tokIdent || ts[0].text != kw {
		return ts, errors.New("%q expected", kw)
	}

	return ts[1:], nil
}

func punct(ts []token, p string) ([]token, error) {
	if len(ts) == 0 || ts[0].kind != tokPunct || ts[0].text != p {
		return ts, errors.New("%q expected", p)
	}

	return ts[1:], nil
}

// operand parses an identifier or a decimal literal, optionally negated.
func operand(ts []token) (o ir.Operand, _ []token, err error) {
	if len(ts) == 0 {
		return o, ts, errors.New("operand expected")
	}

	switch t := ts[0]; {
	case t.kind == tokIdent:
		return ir.Name(t.text), ts[1:], nil
	case t.kind == tokNum:
		v, err := parseInt(t.text)
		if err != nil {
			return o, ts, err
		}

		return ir.Lit(v), ts[1:], nil
	case t.text == "-" && len(ts) > 1 && ts[1].kind == tokNum:
		v, err := parseInt(ts[1].text)
		if err != nil {
			return o, ts, err
		}

		return ir.Lit(-v), ts[2:], nil
	}

	return o, ts, errors.New("operand expected, got %q", ts[0].text)
}

func parseInt(text string) (int64, error) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse int")
	}

	return v, nil
}

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
