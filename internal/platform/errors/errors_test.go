package errors

import (
	stderrs "errors"
	"testing"
)

func TestCategoryMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want string
	}{
		{ErrorCodeNetwork, "network"},
		{ErrorCodeParse, "parse"},
		{ErrorCodeClassification, "classification"},
		{ErrorCodeStorage, "storage"},
		{ErrorCodeDuplicateKey, "duplicate"},
		{ErrorCodeValidation, "validation"},
		{ErrorCodeNotFound, "other"},
		{ErrorCodeUnknown, "other"},
		{9999, "other"}, // default branch
	}
	for _, c := range cases {
		if got := Category(c.code); got != c.want {
			t.Fatalf("Category(%v) = %q, want %q", c.code, got, c.want)
		}
	}

	if got := CategoryOf(New(ErrorCodeNetwork, "down")); got != "network" {
		t.Fatalf("CategoryOf = %q, want network", got)
	}
	if got := CategoryOf(stderrs.New("plain")); got != "other" {
		t.Fatalf("CategoryOf(foreign) = %q, want other", got)
	}
}

func TestErrorTypeAndMethods(t *testing.T) {
	// nil *Error should render "<nil>"
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("nil *Error render = %q, want <nil>", e.Error())
	}

	// New / Newf
	e1 := New(ErrorCodeValidation, "bad stuff")
	if CodeOf(e1) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e1))
	}
	e2 := Newf(ErrorCodeParse, "bad html %d", 12)
	if got := e2.Error(); got != "bad html 12" {
		t.Fatalf("Newf().Error = %q", got)
	}

	// Wrap / Wrapf / Unwrap
	src := stderrs.New("root")
	e3 := Wrap(src, ErrorCodeStorage, "insert failed")
	if unwrapped := stderrs.Unwrap(e3); unwrapped == nil || unwrapped.Error() != "root" {
		t.Fatalf("Wrap did not keep orig")
	}
	if CodeOf(e3) != ErrorCodeStorage {
		t.Fatalf("CodeOf(Wrap) = %v", CodeOf(e3))
	}
	e4 := Wrapf(src, ErrorCodeNetwork, "fetch %s", "here")
	// Error() includes message + ": " + orig
	if want := "fetch here: root"; e4.Error() != want {
		t.Fatalf("Wrapf().Error = %q, want %q", e4.Error(), want)
	}

	// As
	if got, ok := As(e4); !ok || got.Code() != ErrorCodeNetwork {
		t.Fatalf("As() failed for our error")
	}
	if _, ok := As(src); ok {
		t.Fatalf("As() true for foreign error")
	}

	// WithField (copy-on-write) and WithOp
	e5 := Wrap(src, ErrorCodeValidation, "oops")
	e6 := WithField(e5, "url")
	e7 := WithOp(e6, "ingest")
	ours, ok := As(e7)
	if !ok {
		t.Fatalf("As() failed after WithField/WithOp")
	}
	if ours.Field() != "url" || ours.Op() != "ingest" {
		t.Fatalf("field/op = %q/%q", ours.Field(), ours.Op())
	}
	if orig, ok2 := As(e5); !ok2 || orig.Field() != "" || orig.Op() != "" {
		t.Fatalf("WithField/WithOp mutated the original")
	}

	// WithField leaves foreign errors untouched
	if f := WithField(src, "host"); f != src {
		t.Fatalf("WithField(foreign) should return the error unchanged")
	}
}

func TestRootAndPredicates(t *testing.T) {
	src := stderrs.New("base")
	wrapped := Wrap(Wrap(src, ErrorCodeNetwork, "inner"), ErrorCodeStorage, "outer")

	if Root(wrapped) != src {
		t.Fatalf("Root did not reach base error")
	}
	if Root(nil) != nil {
		t.Fatalf("Root(nil) != nil")
	}

	if !IsCode(wrapped, ErrorCodeStorage) {
		t.Fatalf("IsCode outer failed")
	}
	if IsCode(wrapped, ErrorCodeValidation) {
		t.Fatalf("IsCode false positive")
	}
	if IsCode(nil, ErrorCodeStorage) {
		t.Fatalf("IsCode(nil) should be false")
	}

	// WrapIf passthrough semantics
	if WrapIf(nil, ErrorCodeStorage, "x") != nil {
		t.Fatalf("WrapIf(nil) should be nil")
	}
	if w := WrapIf(src, ErrorCodeParse, "y"); CodeOf(w) != ErrorCodeParse {
		t.Fatalf("WrapIf code = %v", CodeOf(w))
	}
}

func TestSugarConstructors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{Networkf("a %d", 1), ErrorCodeNetwork},
		{Parsef("b"), ErrorCodeParse},
		{Classificationf("c"), ErrorCodeClassification},
		{Storagef("d"), ErrorCodeStorage},
		{DuplicateKeyf("e"), ErrorCodeDuplicateKey},
		{Validationf("f"), ErrorCodeValidation},
		{NotFoundf("g"), ErrorCodeNotFound},
	}
	for _, c := range cases {
		if CodeOf(c.err) != c.want {
			t.Fatalf("sugar constructor code = %v, want %v", CodeOf(c.err), c.want)
		}
	}
}
