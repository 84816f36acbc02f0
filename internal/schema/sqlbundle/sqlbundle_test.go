package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		stmts := SplitStatements(ddl)
		if len(stmts) != 2 {
			t.Fatalf("%s: expected 2 statements, got %d", name, len(stmts))
		}
		for _, stmt := range stmts {
			if strings.HasPrefix(stmt, "--") {
				t.Fatalf("%s: statement starts with comment: %q", name, stmt)
			}
			if !strings.HasSuffix(stmt, ";") {
				t.Fatalf("%s: statement missing terminator: %q", name, stmt)
			}
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- header\nSELECT 1;\n\nSELECT 2")
	if len(stmts) != 2 || stmts[1] != "SELECT 2" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}

func TestDialectsDifferInPayloadType(t *testing.T) {
	if !strings.Contains(Postgres(), "JSONB") || strings.Contains(SQLite(), "JSONB") {
		t.Fatal("expected JSONB payload only in the postgres bundle")
	}
}
