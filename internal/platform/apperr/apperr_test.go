package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestError_IsKind(t *testing.T) {
	err := fmt.Errorf("reconcile: %w", NotFoundf("get", "patient", "id %s", "p-1"))
	if !errors.Is(err, NotFound) {
		t.Error("expected errors.Is(err, NotFound)")
	}
	if errors.Is(err, Conflict) {
		t.Error("did not expect Conflict")
	}
	if KindOf(err) != NotFound {
		t.Errorf("expected not_found, got %q", KindOf(err))
	}
}

func TestError_Message(t *testing.T) {
	err := Conflictf("reconcile", "condition", "duplicate condition %q", "Diabetes")
	want := `reconcile condition: duplicate condition "Diabetes"`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	v := Validationf("point", "quantity must not be negative")
	if v.Error() != "point: quantity must not be negative" {
		t.Errorf("unexpected validation message %q", v.Error())
	}
}

func TestFromPG(t *testing.T) {
	if FromPG("get", "patient", nil) != nil {
		t.Error("nil must stay nil")
	}

	err := FromPG("get", "patient", pgx.ErrNoRows)
	if KindOf(err) != NotFound {
		t.Errorf("expected not_found for ErrNoRows, got %q", KindOf(err))
	}

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "patient_record_national_id_key"}
	err = FromPG("create", "patient", fmt.Errorf("insert: %w", pgErr))
	if KindOf(err) != Conflict {
		t.Errorf("expected conflict for unique violation, got %q", KindOf(err))
	}
	if !strings.Contains(err.Error(), "patient_record_national_id_key") {
		t.Errorf("expected constraint name in message, got %q", err.Error())
	}

	cause := errors.New("connection reset")
	err = FromPG("list", "visit", cause)
	if KindOf(err) != Store {
		t.Errorf("expected store, got %q", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Error("store error must wrap its cause")
	}

	already := Validationf("visit", "bad")
	if FromPG("x", "y", already) != error(already) {
		t.Error("classified errors must pass through")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validationf("patient", "name is required"), http.StatusBadRequest},
		{NotFoundf("get", "visit", "missing"), http.StatusNotFound},
		{Conflictf("create", "patient", "duplicate"), http.StatusConflict},
		{StoreErr("list", "patient", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", Validation), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPError_HidesStoreCause(t *testing.T) {
	he := HTTPError(StoreErr("list", "patient", errors.New("password=secret")))
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if msg, _ := he.Message.(string); strings.Contains(msg, "secret") {
		t.Errorf("store cause leaked: %q", msg)
	}
	if he.Internal == nil {
		t.Error("expected internal error to be kept")
	}

	he = HTTPError(NotFoundf("get", "patient", "id p-9"))
	if he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", he.Code)
	}
}
