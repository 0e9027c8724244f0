package main

import (
	"context"
)

// Label is one of the seven discrete emotion classes.
type Label string

const (
	LabelAngry     Label = "Angry"
	LabelDisgusted Label = "Disgusted"
	LabelFearful   Label = "Fearful"
	LabelHappy     Label = "Happy"
	LabelNeutral   Label = "Neutral"
	LabelSad       Label = "Sad"
	LabelSurprised Label = "Surprised"
)

// Classifier maps a fixed-size single-channel face image to an emotion
// label. The trained model lives behind this interface; the server only
// depends on the contract.
type Classifier interface {
	Classify(face *Face) (Label, error)
}

// neutralClassifier stands in when no model is wired up. It never scores
// a laugh, which keeps meters flat rather than random.
type neutralClassifier struct{}

func (neutralClassifier) Classify(*Face) (Label, error) {
	return LabelNeutral, nil
}

// Face-frame evaluation modes. The two signals stay independent; lobby
// settings pick which one a frame is fed to.
const (
	modeDrift   = "drift"
	modeEmotion = "emotion"
)

// ChangeDetector turns a stream of face frames into discrete change
// events for one player. Both round-loss signals implement it; their
// semantics are never merged.
type ChangeDetector interface {
	Observe(ctx context.Context, lobby *Lobby, username string, face *Face) (bool, error)
}

func (s *lobbyServer) detectorFor(mode string) ChangeDetector {
	if mode == modeEmotion {
		return s.laughDetector()
	}
	return &driftChangeDetector{basis: s.basis}
}

func (s *lobbyServer) laughDetector() ChangeDetector {
	return &emotionChangeDetector{pool: s.pool, classifier: s.classifier}
}

// emotionChangeDetector reports a change when the classifier sees a
// positive-affect label, crediting the player's laugh meter by exactly
// one increment per qualifying classification.
type emotionChangeDetector struct {
	pool       *inferencePool
	classifier Classifier
}

func (d *emotionChangeDetector) Observe(ctx context.Context, lobby *Lobby, username string, face *Face) (bool, error) {
	label, err := d.pool.classify(ctx, d.classifier, face)
	if err != nil {
		return false, err
	}

	if label != LabelHappy && label != LabelSurprised {
		return false, nil
	}

	lobby.mu.Lock()
	lobby.laughMeters[username] += laughIncrement
	lobby.mu.Unlock()

	return true, nil
}

// driftChangeDetector tracks a per-player eigenface drift window inside
// the lobby and reports peaks in the smoothed deviation signal.
type driftChangeDetector struct {
	basis *EigenBasis
}

func (d *driftChangeDetector) Observe(_ context.Context, lobby *Lobby, username string, face *Face) (bool, error) {
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	tracker, ok := lobby.driftTrackers[username]
	if !ok {
		tracker = newDriftDetector(d.basis)
		lobby.driftTrackers[username] = tracker
	}

	return tracker.Observe(face), nil
}
