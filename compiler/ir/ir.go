package ir

type (
	// Op is an arithmetic operator.
	Op string

	// Cond is a comparison operator used by IfGoto.
	Cond string

	// Operand is either a variable reference (Name != "") or an integer
	// literal. Identifiers are never empty, so the zero Name is the tag.
	Operand struct {
		Name  string
		Value int64
	}

	// Instr is one IR instruction. Implementations are the structs below.
	Instr interface {
		instr()
	}

	Assign struct {
		Dest string
		Src  Operand
	}

	BinOp struct {
		Dest  string
		Op    Op
		Left  Operand
		Right Operand
	}

	// Deref loads through a pointer-valued variable: Dest = *Ptr.
	Deref struct {
		Dest string
		Ptr  string
	}

	// Ref takes the address of a variable: Dest = &Var.
	Ref struct {
		Dest string
		Var  string
	}

	// Store writes through a pointer-valued variable: *Ptr = Src.
	Store struct {
		Ptr string
		Src Operand
	}

	Label struct {
		Name string
	}

	Goto struct {
		Label string
	}

	IfGoto struct {
		Cond  Cond
		Left  Operand
		Right Operand
		Label string
	}

	// Call invokes Func with the values of the Args variables. Dest is the
	// variable receiving the return value, or "" to discard it.
	Call struct {
		Dest string
		Func string
		Args []string
	}

	Ret struct {
		Value Operand
	}

	// Func is one IR function. Params and Locals are distinct namespaces
	// merged into a single symbol table; Code is never mutated after parse.
	Func struct {
		Name   string
		Params []string
		Locals []string

		Code []Instr
	}

	// Unit is one translation unit: all functions parsed from one file.
	Unit struct {
		Name string

		Funcs []*Func
	}
)

const (
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Mod Op = "%"
)

const (
	Eq Cond = "=="
	Ne Cond = "!="
	Lt Cond = "<"
	Le Cond = "<="
	Gt Cond = ">"
	Ge Cond = ">="
)

func Name(name string) Operand { return Operand{Name: name} }
func Lit(v int64) Operand      { return Operand{Value: v} }

func (o Operand) IsLit() bool { return o.Name == "" }

// Vars returns the function's full variable set in declaration order,
// params first. Slot numbering in both backends follows this order.
func (f *Func) Vars() []string {
	vars := make([]string, 0, len(f.Params)+len(f.Locals))
	vars = append(vars, f.Params...)
	vars = append(vars, f.Locals...)

	return vars
}

func (Assign) instr() {}
func (BinOp) instr()  {}
func (Deref) instr()  {}
func (Ref) instr()    {}
func (Store) instr()  {}
func (Label) instr()  {}
func (Goto) instr()   {}
func (IfGoto) instr() {}
func (Call) instr()   {}
func (Ret) instr()    {}
