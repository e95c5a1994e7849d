package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := `
create table a (id text);
insert into a values ('x;y');
`
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2: %q", len(stmts), stmts)
	}
	if stmts[1] != `insert into a values ('x;y')` {
		t.Fatalf("semicolon inside literal split: %q", stmts[1])
	}
}

func TestUpFilesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := NewRunner(nil, dir)
	names, err := r.upFiles()
	if err != nil {
		t.Fatalf("upFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_a.up.sql" || names[1] != "0002_b.up.sql" {
		t.Fatalf("names = %v", names)
	}
}
