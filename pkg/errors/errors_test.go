package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeVersionConflict, status: http.StatusConflict, retryable: true, detailsOK: true},
		{code: CodeCanceled, status: StatusClientClosedRequest},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing quantity")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Error() != "VALIDATION_ERROR: missing quantity" {
		t.Fatalf("unexpected error string %q", base.Error())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "quantity"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	formatted := Newf(CodeNotFound, "team cart %s not found", "abc")
	if formatted.Message() != "team cart abc not found" {
		t.Fatalf("unexpected message %q", formatted.Message())
	}

	cause := context.Canceled
	wrapped := Wrap(CodeCanceled, cause, "mutation aborted")
	if !stdErrors.Is(wrapped, context.Canceled) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if Wrap(CodeInternal, nil, "no cause").Unwrap() != nil {
		t.Fatalf("nil cause should stay nil")
	}
}

func TestCodeHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeVersionConflict, "stale"))
	if CodeOf(err) != CodeVersionConflict {
		t.Fatalf("expected version conflict, got %s", CodeOf(err))
	}
	if !IsCode(err, CodeVersionConflict) {
		t.Fatalf("IsCode should see through wrapping")
	}
	if !IsRetryable(err) {
		t.Fatalf("version conflict should be retryable")
	}
	if IsRetryable(New(CodeStateConflict, "locked")) {
		t.Fatalf("state conflict is not retryable")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors map to internal")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestLogFieldsCollectsChainAndPgDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "team_cart_orders_team_cart_id_key", TableName: "team_cart_orders"}
	err := Wrap(CodeDependency, fmt.Errorf("insert order: %w", pgErr), "conversion failed")

	fields := LogFields(err)
	if fields["error_code"] != CodeDependency {
		t.Fatalf("expected dependency code, got %v", fields["error_code"])
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", fields["error_chain"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "team_cart_orders_team_cart_id_key" {
		t.Fatalf("pg fields not captured: %+v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty pg detail should be omitted")
	}

	plain := LogFields(stdErrors.New("plain"))
	if _, ok := plain["error_chain"]; ok {
		t.Fatalf("single layer errors carry no chain")
	}
	if len(LogFields(nil)) != 0 {
		t.Fatalf("LogFields(nil) should be empty")
	}
}
