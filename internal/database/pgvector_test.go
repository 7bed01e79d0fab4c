package database

import "testing"

func TestPgVectorRoundTrip(t *testing.T) {
	v := NewPgVector([]float64{1.5, -2, 0.25})
	if v.String() != "[1.5,-2,0.25]" {
		t.Fatalf("String() = %q", v.String())
	}

	var scanned PgVector
	if err := scanned.Scan(v.String()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := scanned.Floats()
	want := []float64{1.5, -2, 0.25}
	if len(got) != len(want) {
		t.Fatalf("Floats() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Floats()[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPgVectorScanNil(t *testing.T) {
	var v PgVector
	if err := v.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if v.Floats() != nil {
		t.Fatal("nil scan must yield nil floats")
	}
}

func TestPgVectorScanBytes(t *testing.T) {
	var v PgVector
	if err := v.Scan([]byte(" [0.1, 0.2] ")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v.Dimension() != 2 {
		t.Fatalf("Dimension() = %d", v.Dimension())
	}
}

func TestPgVectorScanRejectsOtherTypes(t *testing.T) {
	var v PgVector
	if err := v.Scan(42); err == nil {
		t.Fatal("int scan must fail")
	}
}

func TestPgVectorDefensiveCopy(t *testing.T) {
	src := []float64{1, 2, 3}
	v := NewPgVector(src)
	src[0] = 99
	if v.Floats()[0] != 1 {
		t.Fatal("constructor must copy its input")
	}
}
