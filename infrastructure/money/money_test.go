package money

import "testing"

func TestAddAvoidsFloatDrift(t *testing.T) {
	if got := Add(0.1, 0.2); got != 0.3 {
		t.Fatalf("Add(0.1, 0.2) = %v", got)
	}
	if got := Add(); got != 0 {
		t.Fatalf("Add() = %v", got)
	}
	if got := Add(40, 25); got != 65 {
		t.Fatalf("Add(40, 25) = %v", got)
	}
}

func TestSubAndFloor0(t *testing.T) {
	if got := Sub(15, 5); got != 10 {
		t.Fatalf("Sub(15, 5) = %v", got)
	}
	if got := Sub(5, 15); got != -10 {
		t.Fatalf("Sub(5, 15) = %v", got)
	}
	if got := Floor0(100, 30); got != 70 {
		t.Fatalf("Floor0(100, 30) = %v", got)
	}
	if got := Floor0(30, 100); got != 0 {
		t.Fatalf("Floor0(30, 100) = %v", got)
	}
}

func TestRoundMulAndCompare(t *testing.T) {
	if got := Round(10.005); got != 10.01 {
		t.Fatalf("Round(10.005) = %v", got)
	}
	if got := Mul(2.5, 3); got != 7.5 {
		t.Fatalf("Mul(2.5, 3) = %v", got)
	}
	if Cmp(1.001, 1.0) != 0 {
		t.Fatalf("expected sub-cent difference to compare equal")
	}
	if !IsNegative(-0.01) || IsNegative(-0.001) {
		t.Fatalf("IsNegative mismatch")
	}
	if !IsPositive(0.01) || IsPositive(0) {
		t.Fatalf("IsPositive mismatch")
	}
}
