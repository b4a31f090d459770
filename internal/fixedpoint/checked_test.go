package fixedpoint

import (
	"errors"
	"math"
	"testing"
)

func TestAdd(t *testing.T) {
	got, err := Add(1, 2)
	if err != nil || got != 3 {
		t.Fatalf("Add(1,2) = %d, %v", got, err)
	}

	if _, err := Add(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestSub(t *testing.T) {
	if _, err := Sub(1, 2); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if got := SubFloor(1, 2); got != 0 {
		t.Errorf("SubFloor(1,2) = %d, want 0", got)
	}
	if got := SubFloor(5, 2); got != 3 {
		t.Errorf("SubFloor(5,2) = %d, want 3", got)
	}
}

func TestMul(t *testing.T) {
	got, err := Mul(1_000_000, 1_000_000)
	if err != nil || got != 1_000_000_000_000 {
		t.Fatalf("Mul = %d, %v", got, err)
	}

	if _, err := Mul(math.MaxUint64/2, 3); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr error
	}{
		{"simple", 10, 10, 4, 25, nil},
		{"wide intermediate", math.MaxUint64, 10_000, 1_000_000_000, 184467440737095, nil},
		{"divide by zero", 1, 1, 0, 0, ErrDivideByZero},
		{"quotient overflow", math.MaxUint64, 2, 1, 0, ErrOverflow},
		{"rounds down", 7, 1, 2, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MulDiv = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAddInt64(t *testing.T) {
	if _, err := AddInt64(math.MaxInt64, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	got, err := AddInt64(100, 259200)
	if err != nil || got != 259300 {
		t.Errorf("AddInt64 = %d, %v", got, err)
	}
}
