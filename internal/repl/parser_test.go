package repl

import "testing"

func TestParseMetaCommand(t *testing.T) {
	stmt := Parse(".exit")
	if stmt.Kind != KindMeta || stmt.Meta != ".exit" {
		t.Errorf("unexpected statement: %+v", stmt)
	}
}

func TestParseInsert(t *testing.T) {
	stmt := Parse("insert 1 user1 person1@example.com")
	if stmt.Kind != KindInsert {
		t.Fatalf("expected KindInsert, got %v", stmt.Kind)
	}
	want := []string{"1", "user1", "person1@example.com"}
	if len(stmt.Fields) != len(want) {
		t.Fatalf("fields = %v, want %v", stmt.Fields, want)
	}
	for i := range want {
		if stmt.Fields[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, stmt.Fields[i], want[i])
		}
	}
}

func TestParseSelect(t *testing.T) {
	if stmt := Parse("select"); stmt.Kind != KindSelect {
		t.Errorf("expected KindSelect, got %v", stmt.Kind)
	}
}

func TestParseSelectWhereID(t *testing.T) {
	stmt := Parse("select where id = 7")
	if stmt.Kind != KindSelectWhere {
		t.Fatalf("expected KindSelectWhere, got %v", stmt.Kind)
	}
	if stmt.ID != 7 {
		t.Errorf("ID = %d, want 7", stmt.ID)
	}
}

func TestParseEmptyLine(t *testing.T) {
	if stmt := Parse("   "); stmt.Kind != KindEmpty {
		t.Errorf("expected KindEmpty, got %v", stmt.Kind)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	if stmt := Parse("frobnicate"); stmt.Kind != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", stmt.Kind)
	}
}
