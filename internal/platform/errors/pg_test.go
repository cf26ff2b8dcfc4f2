package errors

import (
	"context"
	stderrs "errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code, col, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		ColumnName:     col,
		ConstraintName: constraint,
	}
}

func TestDBErrorCodeMappings(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", ErrorCodeDuplicateKey}, // unique violation
		{"23503", ErrorCodeValidation},   // fk violation -> invalid input
		{"23502", ErrorCodeValidation},   // not null
		{"23514", ErrorCodeValidation},   // check
		{"22001", ErrorCodeValidation},   // string truncation
		{"22P02", ErrorCodeValidation},   // invalid text representation
		{"40001", ErrorCodeStorage},      // serialization failure (retryable)
		{"40P01", ErrorCodeStorage},      // deadlock
		{"55P03", ErrorCodeStorage},      // lock not available
		{"25006", ErrorCodeStorage},      // read-only
		{"57P03", ErrorCodeStorage},      // cannot connect now
		{"XXXXX", ErrorCodeStorage},      // default branch
	}
	for _, c := range cases {
		got, ok := DBErrorCode(pg(c.code, "", ""))
		if !ok {
			t.Fatalf("expected ok for PgError code %s", c.code)
		}
		if got != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, want %v", c.code, got, c.want)
		}
	}

	// Non-pg error path
	if _, ok := DBErrorCode(stderrs.New("nope")); ok {
		t.Fatalf("DBErrorCode should return ok=false for non-pg error")
	}
}

func TestFromPostgresVariants(t *testing.T) {
	// nil passthrough
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("FromPostgres(nil) should be nil")
	}
	if FromPostgresf(nil, "x %d", 1) != nil {
		t.Fatalf("FromPostgresf(nil) should be nil")
	}

	// Mapped code surfaces through CodeOf
	dup := FromPostgres(pg("23505", "", "articles_url_key"), "insert article")
	if CodeOf(dup) != ErrorCodeDuplicateKey {
		t.Fatalf("FromPostgres(23505) code = %v", CodeOf(dup))
	}
	if !IsDuplicateKey(dup) {
		t.Fatalf("IsDuplicateKey should be true after wrapping")
	}

	// Non-pg errors land on Storage
	generic := FromPostgresf(stderrs.New("broken pipe"), "commit batch %d", 3)
	if CodeOf(generic) != ErrorCodeStorage {
		t.Fatalf("FromPostgresf(generic) code = %v", CodeOf(generic))
	}
}

func TestSQLStatePredicates(t *testing.T) {
	if !IsSQLState(pg("23505", "", ""), "23505") {
		t.Fatalf("IsSQLState missed matching code")
	}
	if IsSQLState(pg("23505", "", ""), "40001") {
		t.Fatalf("IsSQLState matched wrong code")
	}
	if IsSQLState(stderrs.New("plain"), "23505") {
		t.Fatalf("IsSQLState matched non-pg error")
	}

	// Predicates see through our wrapper
	wrapped := Wrap(pg("23503", "source_id", "fk_source"), ErrorCodeStorage, "link entity")
	if !IsForeignKeyViolation(wrapped) {
		t.Fatalf("IsForeignKeyViolation should unwrap")
	}
	if !IsSerializationFailure(pg("40001", "", "")) {
		t.Fatalf("IsSerializationFailure missed 40001")
	}
	if !IsDeadlock(pg("40P01", "", "")) {
		t.Fatalf("IsDeadlock missed 40P01")
	}

	// IsDuplicateKey accepts both shapes
	if !IsDuplicateKey(pg("23505", "", "")) {
		t.Fatalf("IsDuplicateKey missed raw pg error")
	}
	if !IsDuplicateKey(DuplicateKeyf("already stored")) {
		t.Fatalf("IsDuplicateKey missed structured code")
	}
	if IsDuplicateKey(Storagef("other")) {
		t.Fatalf("IsDuplicateKey false positive")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
	if IsRetryable(context.Canceled) || IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("local cancellation should not be retryable")
	}

	// Structured codes
	if !IsRetryable(pg("40001", "", "")) || !IsRetryable(pg("40P01", "", "")) || !IsRetryable(pg("55P03", "", "")) {
		t.Fatalf("contention SQLSTATEs should be retryable")
	}
	if IsRetryable(pg("23505", "", "")) {
		t.Fatalf("unique violation should not be retryable")
	}

	// Wrapped still detected
	if !IsRetryable(Wrap(pg("40P01", "", ""), ErrorCodeStorage, "store tx")) {
		t.Fatalf("wrapped deadlock should be retryable")
	}

	// Text fallbacks
	texts := []string{
		"commit unexpectedly resulted in rollback",
		"ERROR: deadlock detected (SQLSTATE 40P01)",
		"could not serialize access due to concurrent update",
		"canceling statement due to statement timeout",
	}
	for _, s := range texts {
		if !IsRetryable(stderrs.New(s)) {
			t.Fatalf("text %q should be retryable", s)
		}
	}
	if IsRetryable(stderrs.New("relation does not exist")) {
		t.Fatalf("unrelated text should not be retryable")
	}
	if !Retryable(stderrs.New("deadlock detected")) {
		t.Fatalf("Retryable should delegate to IsRetryable")
	}
}
