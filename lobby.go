package main

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Per-player score increment applied when a qualifying emotion is
// classified during a round.
const laughIncrement = 0.2

type gameStatus string

const (
	statusIdle      gameStatus = "idle"
	statusVerifying gameStatus = "verifying"
	statusPlaying   gameStatus = "playing"
	statusFinished  gameStatus = "finished"
)

type Settings struct {
	MaxPlayers   int  `json:"maxPlayers"`
	Rounds       int  `json:"rounds"`
	TextDisabled bool `json:"textDisabled"`
}

type GameState struct {
	Status          gameStatus `json:"status"`
	Round           int        `json:"round"`
	VerifiedPlayers []string   `json:"verifiedPlayers"`
}

type FaceDetectionSettings struct {
	Enabled            bool   `json:"enabled"`
	RequiredMode       string `json:"requiredMode"`
	DetectionFrequency int    `json:"detectionFrequency"`
	BroadcastToAll     bool   `json:"broadcastToAll"`
}

func defaultFaceDetectionSettings() FaceDetectionSettings {
	return FaceDetectionSettings{
		Enabled:            false,
		RequiredMode:       modeDrift,
		DetectionFrequency: 5,
		BroadcastToAll:     false,
	}
}

// Lobby is the single source of truth for one game session. All fields
// below mu are guarded by it; connection handlers for the same lobby
// serialize through this lock.
type Lobby struct {
	code string

	mu            sync.Mutex
	name          string
	hostUsername  string
	adminToken    string
	settings      Settings
	players       []string
	verified      []string
	playerImages  map[string]string
	issuedTokens  map[string]string // token -> username
	connected     map[string]*Client
	muted         map[string]bool
	closed        bool
	game          GameState
	laughMeters   map[string]float64
	videoIndex    int
	facedetect    FaceDetectionSettings
	driftTrackers map[string]*DriftDetector

	createdAt  time.Time
	lastActive time.Time
}

func newLobby(code, name, host, adminToken string, settings Settings) *Lobby {
	now := time.Now()
	return &Lobby{
		code:          code,
		name:          name,
		hostUsername:  host,
		adminToken:    adminToken,
		settings:      settings,
		players:       []string{host},
		playerImages:  make(map[string]string),
		issuedTokens:  map[string]string{adminToken: host},
		connected:     make(map[string]*Client),
		muted:         make(map[string]bool),
		game:          GameState{Status: statusIdle},
		laughMeters:   make(map[string]float64),
		facedetect:    defaultFaceDetectionSettings(),
		driftTrackers: make(map[string]*DriftDetector),
		createdAt:     now,
		lastActive:    now,
	}
}

func (l *Lobby) touchLocked() {
	l.lastActive = time.Now()
}

func (l *Lobby) hasPlayerLocked(username string) bool {
	for _, p := range l.players {
		if p == username {
			return true
		}
	}
	return false
}

func (l *Lobby) removePlayerLocked(username string) {
	dst := l.players[:0]
	for _, p := range l.players {
		if p == username {
			continue
		}
		dst = append(dst, p)
	}
	l.players = dst

	for token, owner := range l.issuedTokens {
		if owner == username {
			delete(l.issuedTokens, token)
		}
	}
}

func (l *Lobby) isVerifiedLocked(username string) bool {
	for _, p := range l.verified {
		if p == username {
			return true
		}
	}
	return false
}

func (l *Lobby) unverifiedLocked() []string {
	missing := make([]string, 0, len(l.players))
	for _, p := range l.players {
		if !l.isVerifiedLocked(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// broadcastLocked fans a message out to every connection in the lobby's
// group. Slow consumers are dropped rather than blocking the lobby.
func (l *Lobby) broadcastLocked(msg any) {
	for token, client := range l.connected {
		if !client.enqueue(msg) {
			delete(l.connected, token)
			client.shutdown()
		}
	}
}

// snapshotEventLocked builds the standard group event envelope carrying
// the current roster, host, and settings.
func (l *Lobby) snapshotEventLocked(event, username, role string) map[string]any {
	return map[string]any{
		"event":     event,
		"username":  username,
		"role":      role,
		"lobbyCode": l.code,
		"lobbyName": l.name,
		"host":      l.hostUsername,
		"players":   append([]string(nil), l.players...),
		"settings":  l.settings,
	}
}

// Registry owns the mapping from lobby code to Lobby state.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
}

func newRegistry() *Registry {
	return &Registry{
		lobbies: make(map[string]*Lobby),
	}
}

func (reg *Registry) get(code string) (*Lobby, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	lobby, ok := reg.lobbies[code]
	return lobby, ok
}

func (reg *Registry) delete(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.lobbies, code)
}

func (reg *Registry) list() []*Lobby {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	lobbies := make([]*Lobby, 0, len(reg.lobbies))
	for _, lobby := range reg.lobbies {
		lobbies = append(lobbies, lobby)
	}
	return lobbies
}

func (reg *Registry) create(name, host string, settings Settings) *Lobby {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for {
		code = newLobbyCode()
		if _, exists := reg.lobbies[code]; !exists {
			break
		}
	}

	lobby := newLobby(code, name, host, newToken(), settings)
	reg.lobbies[code] = lobby

	return lobby
}

// newLobbyCode generates a crypto-random 6-character uppercase hex code.
func newLobbyCode() string {
	const letters = "0123456789ABCDEF"

	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, 6)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}
	return string(out)
}

func newToken() string {
	return uuid.New().String()
}

// reaperLoop periodically disbands lobbies idle longer than idleTimeout.
func (s *lobbyServer) reaperLoop(idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-idleTimeout)

		for _, lobby := range s.reg.list() {
			lobby.mu.Lock()
			idle := lobby.lastActive.Before(cutoff)
			lobby.mu.Unlock()

			if idle {
				logf(s.cfg, "LOBBY: Reaping idle lobby %s", lobby.code)
				s.disbandLobby(lobby, "The lobby has been closed due to inactivity.")
			}
		}
	}
}
