package align

import (
	"reflect"
	"strings"
	"testing"
)

func TestOpcodes(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want []op
	}{
		{
			name: "identical sequences",
			a:    "hello there goodbye",
			b:    "hello there goodbye",
			want: []op{{opEqual, 0, 3, 0, 3}},
		},
		{
			name: "empty a is one insert",
			a:    "",
			b:    "hello there",
			want: []op{{opInsert, 0, 0, 0, 2}},
		},
		{
			name: "empty b is one delete",
			a:    "hello there",
			b:    "",
			want: []op{{opDelete, 0, 2, 0, 0}},
		},
		{
			name: "leading replace",
			a:    "x b c",
			b:    "a b c",
			want: []op{{opReplace, 0, 1, 0, 1}, {opEqual, 1, 3, 1, 3}},
		},
		{
			name: "middle insert",
			a:    "a b c",
			b:    "a x b c",
			want: []op{{opEqual, 0, 1, 0, 1}, {opInsert, 1, 1, 1, 2}, {opEqual, 1, 3, 2, 4}},
		},
		{
			name: "middle delete",
			a:    "a x b c",
			b:    "a b c",
			want: []op{{opEqual, 0, 1, 0, 1}, {opDelete, 1, 2, 1, 1}, {opEqual, 2, 4, 1, 3}},
		},
		{
			name: "trailing insert",
			a:    "a b",
			b:    "a b c",
			want: []op{{opEqual, 0, 2, 0, 2}, {opInsert, 2, 2, 2, 3}},
		},
		{
			name: "replace and shift",
			a:    "the cat sat",
			b:    "the dog sat down",
			want: []op{
				{opEqual, 0, 1, 0, 1},
				{opReplace, 1, 2, 1, 2},
				{opEqual, 2, 3, 2, 3},
				{opInsert, 3, 3, 3, 4},
			},
		},
		{
			name: "repeated words anchor the longest run",
			a:    "no no no yes",
			b:    "no no yes",
			want: []op{{opDelete, 0, 1, 0, 0}, {opEqual, 1, 4, 0, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := opcodes(strings.Fields(tt.a), strings.Fields(tt.b))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("opcodes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpcodesCoverBothSequences(t *testing.T) {
	a := strings.Fields("it was a dark and stormy night and nothing stirred")
	b := strings.Fields("it was dark stormy night and everything stirred loudly")

	ops := opcodes(a, b)

	i, j := 0, 0
	for _, o := range ops {
		if o.i1 != i || o.j1 != j {
			t.Fatalf("op %v does not continue from (%d,%d)", o, i, j)
		}
		switch o.tag {
		case opEqual:
			if o.i2-o.i1 != o.j2-o.j1 {
				t.Fatalf("equal op %v has unequal run lengths", o)
			}
			for k := 0; k < o.i2-o.i1; k++ {
				if a[o.i1+k] != b[o.j1+k] {
					t.Fatalf("equal op %v covers unequal tokens", o)
				}
			}
		case opInsert:
			if o.i1 != o.i2 {
				t.Fatalf("insert op %v consumes a", o)
			}
		case opDelete:
			if o.j1 != o.j2 {
				t.Fatalf("delete op %v consumes b", o)
			}
		}
		i, j = o.i2, o.j2
	}
	if i != len(a) || j != len(b) {
		t.Fatalf("ops end at (%d,%d), want (%d,%d)", i, j, len(a), len(b))
	}
}

func TestMatchingBlocksSentinel(t *testing.T) {
	blocks := matchingBlocks(strings.Fields("a b"), strings.Fields("a c"))
	last := blocks[len(blocks)-1]
	if last.a != 2 || last.b != 2 || last.size != 0 {
		t.Errorf("sentinel = %+v, want {2 2 0}", last)
	}
}
