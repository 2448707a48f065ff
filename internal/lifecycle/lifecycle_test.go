package lifecycle

import (
	"errors"
	"testing"

	"github.com/swiftremit/swiftremit/internal/errs"
)

var all = []Status{Pending, Processing, Completed, Cancelled, Failed}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{Pending, Processing}:   true,
		{Pending, Cancelled}:    true,
		{Processing, Completed}: true,
		{Processing, Failed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}] || from == to
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, from := range []Status{Completed, Cancelled, Failed} {
		if !from.Terminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range all {
			if from == to {
				continue
			}
			if err := Validate(from, to); !errors.Is(err, errs.InvalidStateTransition) {
				t.Errorf("Validate(%s, %s) = %v, want InvalidStateTransition", from, to, err)
			}
		}
	}
}

func TestValidateUnknownStatus(t *testing.T) {
	if err := Validate("limbo", Pending); !errors.Is(err, errs.InvalidStatus) {
		t.Errorf("unknown from: %v", err)
	}
	if err := Validate(Pending, "limbo"); !errors.Is(err, errs.InvalidStatus) {
		t.Errorf("unknown to: %v", err)
	}
}

func TestSameStateIsPermitted(t *testing.T) {
	for _, s := range all {
		if err := Validate(s, s); err != nil {
			t.Errorf("Validate(%s, %s) = %v, want nil", s, s, err)
		}
	}
}
