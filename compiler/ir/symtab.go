package ir

import "tlog.app/go/errors"

// Symtab assigns every declared variable a slot index in declaration order,
// params first. The generator turns a slot into a frame offset, the
// interpreter uses it as an arena address. Param/local collisions and
// repeated declarations are rejected here, before either backend runs.
func (f *Func) Symtab() (map[string]int, error) {
	m := make(map[string]int, len(f.Params)+len(f.Locals))

	for i, name := range f.Vars() {
		if _, ok := m[name]; ok {
			return nil, errors.New("duplicate variable %q", name)
		}

		m[name] = i
	}

	return m, nil
}

// Labels collects label positions and checks every jump resolves. Positions
// index into Code, so they are usable as a program counter by the
// interpreter; the generator only needs the existence check.
func (f *Func) Labels() (map[string]int, error) {
	ls := map[string]int{}

	for i, x := range f.Code {
		l, ok := x.(Label)
		if !ok {
			continue
		}

		if _, ok := ls[l.Name]; ok {
			return nil, errors.New("duplicate label %q", l.Name)
		}

		ls[l.Name] = i
	}

	check := func(name string) error {
		if _, ok := ls[name]; !ok {
			return errors.New("undefined label %q", name)
		}

		return nil
	}

	for i, x := range f.Code {
		var err error

		switch x := x.(type) {
		case Goto:
			err = check(x.Label)
		case IfGoto:
			err = check(x.Label)
		}

		if err != nil {
			return nil, errors.Wrap(err, "instruction %d", i)
		}
	}

	return ls, nil
}
