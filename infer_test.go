package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyReturnsLabel(t *testing.T) {
	pool := newInferencePool(2, time.Second)

	label, err := pool.classify(context.Background(), fixedClassifier{label: LabelHappy}, uniformFace(0.5))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if label != LabelHappy {
		t.Fatalf("label = %q, want %q", label, LabelHappy)
	}
}

func TestClassifyTimeoutReadsAsNoFace(t *testing.T) {
	pool := newInferencePool(2, 50*time.Millisecond)

	_, err := pool.classify(context.Background(), slowClassifier{delay: time.Second}, uniformFace(0.5))
	if err == nil {
		t.Fatal("expected timeout error")
	}

	var infErr *InferenceError
	if !errors.As(err, &infErr) || infErr.Kind != ErrNoFace {
		t.Fatalf("error = %v, want kind %v", err, ErrNoFace)
	}
}

func TestClassifyWrapsClassifierFailure(t *testing.T) {
	pool := newInferencePool(2, time.Second)
	boom := errors.New("model exploded")

	_, err := pool.classify(context.Background(), fixedClassifier{err: boom}, uniformFace(0.5))

	var infErr *InferenceError
	if !errors.As(err, &infErr) || infErr.Kind != ErrClassifier {
		t.Fatalf("error = %v, want kind %v", err, ErrClassifier)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error %v does not wrap the classifier failure", err)
	}
}

func TestClassifySaturatedPoolTimesOut(t *testing.T) {
	pool := newInferencePool(1, 100*time.Millisecond)

	// Occupy the single worker slot.
	go pool.classify(context.Background(), slowClassifier{delay: time.Second}, uniformFace(0.5))
	time.Sleep(20 * time.Millisecond)

	_, err := pool.classify(context.Background(), fixedClassifier{label: LabelNeutral}, uniformFace(0.5))

	var infErr *InferenceError
	if !errors.As(err, &infErr) || infErr.Kind != ErrNoFace {
		t.Fatalf("error = %v, want kind %v while pool saturated", err, ErrNoFace)
	}
}
