package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_participant_session_email", TableName: "participants"}
	err := Wrap(CodeDuplicateRegistration, fmt.Errorf("insert participant: %w", pgErr), "duplicate")

	d := Dump(err)
	if d.Code != CodeDuplicateRegistration {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "uq_participant_session_email" {
		t.Fatalf("postgres details not extracted: %+v", d)
	}
	fields := d.Fields()
	if fields["pg_table"] != "participants" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if _, ok := fields["error_chain"]; !ok {
		t.Fatalf("expected chain for wrapped error")
	}
}

func TestDumpFieldsOmitEmptyValues(t *testing.T) {
	fields := Dump(fmt.Errorf("plain")).Fields()
	if len(fields) != 1 || fields["error"] != "plain" {
		t.Fatalf("expected only the message, got %v", fields)
	}
	if len(Dump(nil).Chain) != 0 {
		t.Fatalf("nil error should dump empty")
	}
}
