package apperr

import (
	"errors"
	"testing"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(InternalFatal, "open database", base)
	if KindOf(err) != InternalFatal {
		t.Fatalf("expected InternalFatal, got %v", KindOf(err))
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected errors.Is to find itself")
	}
	if !errors.As(err, new(*Error)) {
		t.Fatalf("expected errors.As to unwrap to *Error")
	}
}

func TestKindOfDefaultsToUnknown(t *testing.T) {
	if KindOf(errors.New("plain error")) != Unknown {
		t.Fatalf("expected Unknown for a plain error")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(InternalFatal, "noop", nil) != nil {
		t.Fatalf("expected Wrap(nil) to return nil")
	}
}

func TestIs(t *testing.T) {
	err := NotFoundf("table %d not found", 7)
	if !Is(err, NotFound) {
		t.Fatalf("expected NotFound classification")
	}
	if Is(err, Conflict) {
		t.Fatalf("did not expect Conflict classification")
	}
}

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	err := Wrap(InternalFatal, "load hand", errors.New("no rows"))
	want := "load hand: no rows"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
