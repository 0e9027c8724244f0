package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *lobbyServer {
	t.Helper()

	cfg := &Config{
		mediaDir:         t.TempDir(),
		inferenceWorkers: 2,
		inferenceTimeout: time.Second,
	}

	videos := &VideoList{urls: []string{
		"https://example.com/clips/1",
		"https://example.com/clips/2",
		"https://example.com/clips/3",
	}}

	return newLobbyServer(cfg, videos)
}

func newTestLobby(t *testing.T, srv *lobbyServer, maxPlayers, rounds int) *Lobby {
	t.Helper()

	return srv.reg.create("Test Lobby", "host", Settings{
		MaxPlayers: maxPlayers,
		Rounds:     rounds,
	})
}

// joinPlayer issues a token the way the HTTP join endpoint would.
func joinPlayer(l *Lobby, username string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasPlayerLocked(username) {
		l.players = append(l.players, username)
	}
	token := newToken()
	l.issuedTokens[token] = username
	return token
}

// connectClient registers a live connection directly, bypassing the
// websocket transport.
func connectClient(l *Lobby, username, token, role string) *Client {
	c := &Client{
		send:     make(chan any, 32),
		lobby:    l,
		username: username,
		token:    token,
		role:     role,
	}

	l.mu.Lock()
	l.connected[token] = c
	l.mu.Unlock()

	return c
}

// nextPrivate drains the client's queue until a private message arrives.
func nextPrivate(t *testing.T, c *Client) privateMessage {
	t.Helper()

	for {
		select {
		case raw := <-c.send:
			if msg, ok := raw.(privateMessage); ok {
				return msg
			}
		default:
			t.Fatalf("no private message queued for %q", c.username)
		}
	}
}

// nextEvent drains the client's queue until a group event arrives.
func nextEvent(t *testing.T, c *Client) map[string]any {
	t.Helper()

	for {
		select {
		case raw := <-c.send:
			if msg, ok := raw.(map[string]any); ok {
				return msg
			}
		default:
			t.Fatalf("no group event queued for %q", c.username)
		}
	}
}

func drainSend(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

// testImageData renders a uniform gray frame and returns it as the
// data-URL payload clients send.
func testImageData(t *testing.T, shade uint8) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = shade
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// uniformFace builds a constant-intensity grayscale frame.
func uniformFace(value float64) *Face {
	face := newFace(faceSize, faceSize)
	for i := range face.Pix {
		face.Pix[i] = value
	}
	return face
}

// gradientFace builds a frame whose intensity rises across rows.
func gradientFace() *Face {
	face := newFace(faceSize, faceSize)
	for y := 0; y < face.H; y++ {
		for x := 0; x < face.W; x++ {
			face.Pix[y*face.W+x] = float64(y) / float64(face.H-1)
		}
	}
	return face
}

// testBasis is an eigenface basis with enough rank to distinguish the
// test frames.
func testBasis() *EigenBasis {
	return NewEigenBasis([]*Face{
		uniformFace(0),
		uniformFace(1),
		gradientFace(),
	}, eigenComponents)
}

type fixedClassifier struct {
	label Label
	err   error
}

func (c fixedClassifier) Classify(*Face) (Label, error) {
	return c.label, c.err
}

type slowClassifier struct {
	delay time.Duration
}

func (c slowClassifier) Classify(*Face) (Label, error) {
	time.Sleep(c.delay)
	return LabelNeutral, nil
}
