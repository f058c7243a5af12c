package ui

import (
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	tbl := NewTable(3)
	tbl.AddRow("doc1", "12", "note")
	tbl.AddRow("a-much-longer-key", "3", "task")

	got := tbl.String()
	want := "doc1               12  note\n" +
		"a-much-longer-key  3   task\n"
	if got != want {
		t.Errorf("Table.String() =\n%q\nwant\n%q", got, want)
	}
}

func TestEmptyTable(t *testing.T) {
	if got := NewTable(2).String(); got != "" {
		t.Errorf("empty table rendered %q", got)
	}
}
