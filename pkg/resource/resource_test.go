package resource

import (
	"errors"
	"testing"
)

func TestRequireLoadsOnce(t *testing.T) {
	calls := 0
	Register("testBundle", func() error {
		calls++
		return nil
	})

	if IsLoaded("testBundle") {
		t.Fatal("loaded before Require")
	}
	for i := 0; i < 3; i++ {
		if err := Require("testBundle"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("loader ran %d times", calls)
	}
	if !IsLoaded("testBundle") {
		t.Error("IsLoaded = false after Require")
	}
	found := false
	for _, name := range Loaded() {
		found = found || name == "testBundle"
	}
	if !found {
		t.Error("Loaded() does not list testBundle")
	}
}

func TestRequireErrors(t *testing.T) {
	if err := Require("testMissing"); err == nil {
		t.Error("expected error for unregistered resource")
	}

	boom := errors.New("boom")
	Register("testFailing", func() error { return boom })
	if err := Require("testFailing"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped loader error, got %v", err)
	}
	if IsLoaded("testFailing") {
		t.Error("failed resource marked as loaded")
	}
}
