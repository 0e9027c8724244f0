package main

import (
	"context"
	"fmt"
	"time"
)

// InferenceErrorKind distinguishes the failure modes of the inference
// path instead of collapsing them into one catch-all.
type InferenceErrorKind int

const (
	// ErrNoFace covers a missing or unusable face image, including
	// inference that timed out before producing a label.
	ErrNoFace InferenceErrorKind = iota
	// ErrDecode covers undecodable image bytes.
	ErrDecode
	// ErrClassifier covers failures inside the classifier itself.
	ErrClassifier
)

func (k InferenceErrorKind) String() string {
	switch k {
	case ErrNoFace:
		return "no-face"
	case ErrDecode:
		return "decode-error"
	case ErrClassifier:
		return "classifier-error"
	default:
		return "unknown"
	}
}

type InferenceError struct {
	Kind InferenceErrorKind
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func noFaceError(err error) error {
	return &InferenceError{Kind: ErrNoFace, Err: err}
}

func decodeError(err error) error {
	return &InferenceError{Kind: ErrDecode, Err: err}
}

func classifierError(err error) error {
	return &InferenceError{Kind: ErrClassifier, Err: err}
}

// inferencePool bounds concurrent classifier invocations so one slow
// inference cannot stall unrelated connections, and bounds their latency
// so a hung model reads as a skipped frame.
type inferencePool struct {
	sem     chan struct{}
	timeout time.Duration
}

func newInferencePool(workers int, timeout time.Duration) *inferencePool {
	return &inferencePool{
		sem:     make(chan struct{}, workers),
		timeout: timeout,
	}
}

func (p *inferencePool) classify(ctx context.Context, classifier Classifier, face *Face) (Label, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", noFaceError(ctx.Err())
	}

	type result struct {
		label Label
		err   error
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-p.sem }()

		label, err := classifier.Classify(face)
		if err != nil {
			err = classifierError(err)
		}
		done <- result{label: label, err: err}
	}()

	select {
	case res := <-done:
		return res.label, res.err
	case <-ctx.Done():
		// The goroutine finishes on its own schedule; the caller treats
		// the frame as skipped.
		return "", noFaceError(ctx.Err())
	}
}
