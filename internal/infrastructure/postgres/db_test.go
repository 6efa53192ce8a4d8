package postgres

import (
	"io/fs"
	"sort"
	"strings"
	"testing"
)

func TestMigrationsIndexLedgerReferences(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	sort.Strings(names)
	if len(names) < 2 || names[0] != "migrations/0001_settlement.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}

	var all strings.Builder
	for _, name := range names {
		script, err := migrations.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		all.Write(script)
	}
	for _, want := range []string{
		"ON payout_transaction (account_id, currency_code, created_at DESC)",
		"ON payout_transaction (reference, reference_id)",
	} {
		if !strings.Contains(all.String(), want) {
			t.Fatalf("no migration creates index %q", want)
		}
	}
}

func TestRowLocksOnlyInsideTransaction(t *testing.T) {
	t.Parallel()

	if got := NewUnitOfWork(nil).forUpdate(); got != "" {
		t.Fatalf("reads outside a transaction must not lock, got %q", got)
	}
}
