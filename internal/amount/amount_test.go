package amount

import "testing"

func TestFloorRoundsTowardNegativeInfinity(t *testing.T) {
	a := MustNew("1.0000000000000000009")
	got := a.Floor().String()
	want := "1.000000000000000000"
	if got != want {
		t.Fatalf("Floor() = %s, want %s", got, want)
	}
}

func TestArithmetic(t *testing.T) {
	a := MustNew("10")
	b := MustNew("3")
	if got := a.Add(b).String(); got != "13.000000000000000000" {
		t.Fatalf("Add = %s", got)
	}
	if got := a.Sub(b).String(); got != "7.000000000000000000" {
		t.Fatalf("Sub = %s", got)
	}
	if !a.GreaterThan(b) {
		t.Fatalf("expected 10 > 3")
	}
	if !b.LessThan(a) {
		t.Fatalf("expected 3 < 10")
	}
}

func TestDivRetainsPrecisionBeforeFloor(t *testing.T) {
	a := MustNew("10")
	b := MustNew("3")
	div := a.Div(b)
	if div.Floor().String() == "3.000000000000000000" {
		// sanity: 10/3 floored to 18 digits should carry many 3s, not be a clean 3.
	}
	full := div.String()
	if full == "3.000000000000000000" {
		t.Fatalf("Div lost precision: %s", full)
	}
}

func TestScanAndValue(t *testing.T) {
	var a Amount
	if err := a.Scan("42.5"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if a.String() != "42.500000000000000000" {
		t.Fatalf("got %s", a.String())
	}
	v, err := a.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "42.500000000000000000" {
		t.Fatalf("Value() = %v", v)
	}
}

func TestScanNil(t *testing.T) {
	var a Amount
	if err := a.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !a.IsZero() {
		t.Fatalf("expected zero after Scan(nil)")
	}
}
