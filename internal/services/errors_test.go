package services_test

import (
	"errors"
	"strings"
	"testing"

	"mediashelf/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProviderUnavailable, "match", "search", "lookup failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"match", "search", "lookup failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "scan", "walk", "", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestCycleFatalClassification(t *testing.T) {
	fatal := services.Wrap(services.ErrFilesystemUnavailable, "scan", "walk", "root vanished", nil)
	if !services.CycleFatal(fatal) {
		t.Fatalf("expected filesystem loss to be cycle fatal: %v", fatal)
	}
	corrupt := services.Wrap(services.ErrCorruptSnapshot, "commit", "load", "bad snapshot", nil)
	if !services.CycleFatal(corrupt) {
		t.Fatalf("expected corrupt snapshot to be cycle fatal: %v", corrupt)
	}
	outage := services.Wrap(services.ErrProviderUnavailable, "match", "search", "429", nil)
	if services.CycleFatal(outage) {
		t.Fatalf("expected provider outage to be non-fatal: %v", outage)
	}
	if services.CycleFatal(nil) {
		t.Fatal("nil error must not be fatal")
	}
}

func TestDegradedClassification(t *testing.T) {
	outage := services.Wrap(services.ErrProviderUnavailable, "match", "search", "429", nil)
	if !services.Degraded(outage) {
		t.Fatalf("expected provider outage to degrade the cycle: %v", outage)
	}
	invalid := services.Wrap(services.ErrValidation, "resolve", "apply", "bad id", nil)
	if services.Degraded(invalid) {
		t.Fatalf("validation errors are not degradation: %v", invalid)
	}
}
