package errno

import (
	"errors"
	"testing"
)

func TestWrapNilOnOK(t *testing.T) {
	if err := Wrap("open", OK); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapAndAs(t *testing.T) {
	err := Wrap("open", ENOMEM)
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if got := As(err); got != ENOMEM {
		t.Fatalf("As() = %v, want ENOMEM", got)
	}
	var se *SyscallError
	if !errors.As(err, &se) {
		t.Fatal("expected errors.As to find *SyscallError")
	}
	if !errors.Is(err, ENOMEM) {
		t.Fatal("expected errors.Is(err, ENOMEM)")
	}
}

func TestAsUnrelatedError(t *testing.T) {
	if got := As(errors.New("boom")); got != EINVAL {
		t.Fatalf("As() = %v, want EINVAL", got)
	}
}

func TestAsNil(t *testing.T) {
	if got := As(nil); got != OK {
		t.Fatalf("As(nil) = %v, want OK", got)
	}
}
