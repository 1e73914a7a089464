package paramspace

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func TestValueSetExpand(t *testing.T) {
	tests := []struct {
		name    string
		set     ValueSet
		want    []string
		wantErr error
	}{
		{"discrete mixed", Values(1, "a", nil, 0.5), []string{"1", "a", "None", "0.5"}, nil},
		{"int range", IntRange(1, 5, 5), []string{"1", "2", "3", "4", "5"}, nil},
		{"int range dedup", IntRange(1, 3, 5), []string{"1", "2", "3"}, nil},
		{"int range single", IntRange(7, 9, 1), []string{"7"}, nil},
		{"int range descending", IntRange(10, 0, 3), []string{"10", "5", "0"}, nil},
		{"int range truncates", IntRange(0, 5, 4), []string{"0", "1", "3", "5"}, nil},
		{"float range", FloatRange(0, 1, 5), []string{"0", "0.25", "0.5", "0.75", "1"}, nil},
		{"zero steps", IntRange(1, 3, 0), nil, ErrBadRange},
		{"negative steps", FloatRange(0, 1, -2), nil, ErrBadRange},
		{"empty list", Values(), nil, ErrConfig},
		{"bad value", Values(struct{}{}), nil, ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.set.Expand()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, strs(got)); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBadRangeIsConfigError(t *testing.T) {
	assert.True(t, errors.Is(ErrBadRange, ErrConfig))
}

func TestDeclaration(t *testing.T) {
	d := NewDeclaration().
		Add("lr", Values(0.1, 0.2)).
		Add("bs", Values(8, 16, 32)).
		Add("opt", Values("adam"))
	require.NoError(t, d.Err())

	assert.Equal(t, []string{"lr", "bs", "opt"}, d.Names())
	assert.Equal(t, []int{2, 3, 1}, d.Dims())
	total, err := d.Total()
	require.NoError(t, err)
	assert.Equal(t, 6, total)

	col, ok := d.Index("bs")
	assert.True(t, ok)
	assert.Equal(t, 1, col)
	_, ok = d.Index("missing")
	assert.False(t, ok)
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		decl *Declaration
		want error
	}{
		{"empty", NewDeclaration(), ErrConfig},
		{"nil", nil, ErrConfig},
		{"duplicate", NewDeclaration().Add("a", Values(1)).Add("a", Values(2)), ErrConfig},
		{"blank name", NewDeclaration().Add("", Values(1)), ErrConfig},
		{"bad range", NewDeclaration().Add("a", IntRange(0, 1, 0)), ErrBadRange},
		{"first error wins", NewDeclaration().Add("a", IntRange(0, 1, 0)).Add("a", Values(1)), ErrBadRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decl.Err()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDeclarationTotalOverflow(t *testing.T) {
	d := NewDeclaration()
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		d.Add(name, IntRange(0, 1<<20, 1<<10))
	}
	require.NoError(t, d.Err())
	_, err := d.Total()
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestDeclarationJSON(t *testing.T) {
	d := NewDeclaration().
		Add("activation", Values(Func("relu", relu), "tanh", nil)).
		Add("units", IntRange(8, 32, 4)).
		Add("dropout", FloatRange(0, 0.5, 3))
	require.NoError(t, d.Err())

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var back Declaration
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, d.Equal(&back))
	assert.Equal(t, d.Names(), back.Names())

	other := NewDeclaration().Add("activation", Values("relu", "tanh", nil))
	assert.False(t, d.Equal(other))
}
