package render

import "testing"

func TestRender_SubstitutesVariables(t *testing.T) {
	r := New()
	out, err := r.Render(`Given log message "{{ greeting }}"`, map[string]string{"greeting": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `Given log message "hello"`
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestRender_UndefinedVariableRendersEmpty(t *testing.T) {
	r := New()
	out, err := r.Render(`Given log message "{{ missing }}"`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `Given log message ""`
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestRender_MalformedTemplateReturnsRenderFailed(t *testing.T) {
	r := New()
	_, err := r.Render(`{% if %}`, nil)
	if err == nil {
		t.Fatalf("expected an error for malformed template syntax")
	}
}

func TestRenderedOrDiagnostic_ReportsFailureWithoutPanicking(t *testing.T) {
	r := New()
	_, ok, msg := r.RenderedOrDiagnostic(`{% if %}`, nil)
	if ok {
		t.Fatalf("expected success=false for malformed template")
	}
	if msg == "" {
		t.Fatalf("expected a non-empty diagnostic message")
	}
}
