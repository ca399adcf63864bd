package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymtabOrder(t *testing.T) {
	f := &Func{
		Name:   "f",
		Params: []string{"a", "b"},
		Locals: []string{"x", "y"},
	}

	m, err := f.Symtab()
	require.NoError(t, err)

	// params first, then locals, declaration order
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "x": 2, "y": 3}, m)
}

func TestSymtabDuplicates(t *testing.T) {
	for _, f := range []*Func{
		{Name: "f", Params: []string{"a", "a"}},
		{Name: "f", Locals: []string{"x", "x"}},
		{Name: "f", Params: []string{"a"}, Locals: []string{"a"}},
	} {
		_, err := f.Symtab()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate variable")
	}
}

func TestLabels(t *testing.T) {
	f := &Func{
		Name: "f",
		Code: []Instr{
			Goto{Label: "end"}, // forward jump
			Label{Name: "end"},
			Ret{Value: Lit(0)},
		},
	}

	ls, err := f.Labels()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"end": 1}, ls)
}

func TestLabelsUnresolved(t *testing.T) {
	f := &Func{
		Name: "f",
		Code: []Instr{
			IfGoto{Cond: Lt, Left: Lit(0), Right: Lit(1), Label: "gone"},
			Ret{Value: Lit(0)},
		},
	}

	_, err := f.Labels()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined label "gone"`)
}
