package routing

import "testing"

func TestValuesSpanAndString(t *testing.T) {
	path := "/badges/tests/linux/acme/widgets/feature%2Fx"
	var v Values
	v.Reset(path)
	v.add("platform", 14, 5)
	v.add("branch", 33, 11)

	if got, ok := v.Span("platform"); !ok || got != "linux" {
		t.Errorf("Span(platform) = %q, %v", got, ok)
	}
	if got, ok := v.Span("branch"); !ok || got != "feature%2Fx" {
		t.Errorf("Span(branch) = %q, %v, want raw escaped span", got, ok)
	}
	if got, ok := v.String("branch"); !ok || got != "feature/x" {
		t.Errorf("String(branch) = %q, %v, want decoded", got, ok)
	}
	if _, ok := v.Span("missing"); ok {
		t.Error("Span(missing) reported found")
	}
}

func TestValuesResetDiscards(t *testing.T) {
	var v Values
	v.Reset("/a/b")
	v.add("x", 1, 1)
	v.Reset("/c")
	if v.Count() != 0 {
		t.Errorf("Count() = %d after Reset", v.Count())
	}
	if _, ok := v.Span("x"); ok {
		t.Error("stale parameter survived Reset")
	}
}

func TestValuesInvalidEscapeReturnsRaw(t *testing.T) {
	var v Values
	v.Reset("/x/%zz")
	v.add("p", 3, 3)
	if got, ok := v.String("p"); !ok || got != "%zz" {
		t.Errorf("String(p) = %q, %v, want raw fallback", got, ok)
	}
}

func TestValuesOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on capacity overflow")
		}
	}()
	var v Values
	v.Reset("/abcdefghij")
	for i := 0; i <= MaxParams; i++ {
		v.add("p", 1, 1)
	}
}
