package changetracking

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDiffRows(t *testing.T) {
	old := []Row{{"k": 1, "v": "A"}, {"k": 2, "v": "B"}, {"k": 3, "v": "C"}}
	cur := []Row{{"k": 1, "v": "A"}, {"k": 2, "v": "B2"}, {"k": 4, "v": "D"}}

	d := DiffRows(old, cur, []string{"k"}, []string{"v"})

	want := Diff{
		Added:      []Row{{"k": 4, "v": "D"}},
		Removed:    []Row{{"k": 3, "v": "C"}},
		Deprecated: []Row{{"k": 2, "v": "B"}},
		Updated:    []Row{{"k": 2, "v": "B2"}},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
	if d.Empty() {
		t.Error("diff should not be empty")
	}
}

func TestDiffRows_Nulls(t *testing.T) {
	old := []Row{
		{"k": "a", "v": nil},
		{"k": "b", "v": math.NaN()},
		{"k": "c", "v": nil},
	}
	cur := []Row{
		{"k": "a", "v": nil},
		{"k": "b", "v": nil},
		{"k": "c", "v": "x"},
	}

	d := DiffRows(old, cur, []string{"k"}, []string{"v"})
	if len(d.Updated) != 1 || d.Updated[0]["k"] != "c" {
		t.Errorf("only c should be modified, but %v", d.Updated)
	}
}

type category string

func (c category) String() string { return string(c) }

func TestDiffRows_CategoriesCompareByValue(t *testing.T) {
	old := []Row{{"k": 1, "kat": category("Parkhaus"), "n": 10}}
	cur := []Row{{"k": 1, "kat": "Parkhaus", "n": 10}}

	d := DiffRows(old, cur, []string{"k"}, []string{"kat", "n"})
	if !d.Empty() {
		t.Errorf("diff should be empty, but %+v", d)
	}
}

func TestDiffRows_CompositeKey(t *testing.T) {
	old := []Row{{"a": 1, "b": 2, "v": 1}}
	cur := []Row{{"a": 1, "b": 3, "v": 1}}

	d := DiffRows(old, cur, []string{"a", "b"}, []string{"v"})
	if len(d.Added) != 1 || len(d.Removed) != 1 {
		t.Errorf("composite keys should differ, but %+v", d)
	}
}
