package fixedpoint

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// go test -v --run TestNormalize
func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1000000000000000000"},
		{"1.1", "1100000000000000000"},
		{"0.000000000000000001", "1"},
		{"0.0000000000000000019", "1"},
		{"1.1234567890123456789", "1123456789012345678"},
		{"1.123456789012345678", "1123456789012345678"},
		{"1.234567890123456789123", "1234567890123456789"},
		{"1.5e-7", "150000000000"},
		{"2E3", "2000000000000000000000"},
		{"+42.5", "42500000000000000000"},
		{"1e-19", "0"},
		{"1e-2000000000", "0"},
		{"-0", "0"},
		{"64250.12", "64250120000000000000000"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("Normalize(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTruncatesNeverRounds(t *testing.T) {
	long, err := Normalize("1.1234567890123456789")
	if err != nil {
		t.Fatal(err)
	}
	short, err := Normalize("1.123456789012345678")
	if err != nil {
		t.Fatal(err)
	}
	if !long.Equal(short) {
		t.Fatalf("expected truncation: %s != %s", long, short)
	}

	nines, err := Normalize("0.9999999999999999999999")
	if err != nil {
		t.Fatal(err)
	}
	if nines.String() != "999999999999999999" {
		t.Fatalf("expected digits past 18 to be dropped, got %s", nines)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrNotNumeric},
		{"abc", ErrNotNumeric},
		{"1.2.3", ErrNotNumeric},
		{" 1.2", ErrNotNumeric},
		{"NaN", ErrNotNumeric},
		{"+-1", ErrNotNumeric},
		{"++1", ErrNotNumeric},
		{"+", ErrNotNumeric},
		{"-1", ErrNegative},
		{"-0.000001", ErrNegative},
		{"1e100", ErrOverflow},
		{"1" + strings.Repeat("0", 60), ErrOverflow},
	}

	for _, tt := range tests {
		_, err := Normalize(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("Normalize(%q) error = %v, want %v", tt.in, err, tt.want)
		}
		var nerr *NormalizationError
		if !errors.As(err, &nerr) {
			t.Errorf("Normalize(%q) error is not a *NormalizationError: %T", tt.in, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"0",
		"1",
		"1.1",
		"0.5",
		"123456789.123456789012345678",
		"0.000000000000000001",
		"98765.4321",
	}

	for _, in := range inputs {
		p, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got := p.Denormalize(); got != in {
			t.Errorf("Denormalize(Normalize(%q)) = %q", in, got)
		}
	}
}

func TestNormalizeFloat(t *testing.T) {
	p, err := NormalizeFloat(1.1)
	if err != nil {
		t.Fatal(err)
	}
	if p.String() != "1100000000000000000" {
		t.Fatalf("NormalizeFloat(1.1) = %s", p)
	}

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := NormalizeFloat(f); !errors.Is(err, ErrNotNumeric) {
			t.Errorf("NormalizeFloat(%v) error = %v", f, err)
		}
	}
	if _, err := NormalizeFloat(-2.5); !errors.Is(err, ErrNegative) {
		t.Errorf("NormalizeFloat(-2.5) error = %v", err)
	}
}

func TestFromRaw(t *testing.T) {
	p, err := FromRaw("1100000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if p.Denormalize() != "1.1" {
		t.Fatalf("FromRaw denormalized to %s", p.Denormalize())
	}
	if _, err := FromRaw("-5"); !errors.Is(err, ErrNegative) {
		t.Errorf("expected ErrNegative, got %v", err)
	}
	if _, err := FromRaw("1.5"); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("expected ErrNotNumeric, got %v", err)
	}
}

func TestZeroValue(t *testing.T) {
	var p Price
	if !p.IsZero() || p.String() != "0" || p.Denormalize() != "0" {
		t.Fatalf("unexpected zero value: %s / %s", p, p.Denormalize())
	}
}
