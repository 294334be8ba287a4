package table

import "testing"

func TestNew_DuplicateColumn(t *testing.T) {
	if _, err := New("t", []string{"a", "b", "a"}); err == nil {
		t.Fatal("expected error for duplicate column")
	}
}

func TestTable_AppendAndAccess(t *testing.T) {
	tb := MustNew("t", []string{"id", "age"})
	if err := tb.Append([]Value{Str("p1"), Num(50)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tb.Append([]Value{Str("p2"), Absent()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tb.Append([]Value{Str("p3")}); err == nil {
		t.Error("expected error for short row")
	}

	if tb.Len() != 2 || tb.Width() != 2 {
		t.Fatalf("expected 2x2, got %dx%d", tb.Len(), tb.Width())
	}
	if got := tb.At(0, "age").Text(); got != "50" {
		t.Errorf("expected age 50, got %q", got)
	}
	if !tb.At(0, "missing").IsAbsent() {
		t.Error("expected unknown column to read as absent")
	}
	if n := tb.PresentCount("age"); n != 1 {
		t.Errorf("expected 1 present age, got %d", n)
	}
	if err := tb.Set(1, "nope", Num(1)); err == nil {
		t.Error("expected error setting unknown column")
	}
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tb := MustNew("t", []string{"a"})
	tb.Append([]Value{Str("x")})

	c := tb.Clone()
	c.Set(0, "a", Str("y"))
	if tb.At(0, "a").Text() != "x" {
		t.Error("expected original to be unchanged after mutating clone")
	}

	cols := tb.Columns()
	cols[0] = "changed"
	if !tb.HasColumn("a") {
		t.Error("expected Columns to return a copy")
	}

	row := tb.Row(0)
	row[0] = Str("z")
	if tb.At(0, "a").Text() != "x" {
		t.Error("expected Row to return a copy")
	}
}
