package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Close codes sent when a handshake is rejected. Each maps to exactly one
// failure reason and is stable across releases.
const (
	closeInternalError     = 4000 // internal-error
	closeMissingParameters = 4001 // missing-parameters
	closeAuthFailed        = 4003 // auth-failed
	closeLobbyNotFound     = 4004 // lobby-not-found
	closeDuplicateToken    = 4009 // duplicate-token
	closeLobbyFull         = 4010 // lobby-full
	closeLobbyClosed       = 4011 // lobby-closed
)

const (
	roleAdmin  = "admin"
	rolePlayer = "player"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// lobbyServer wires the registry, image store, video list, and inference
// path together for both the HTTP API and the socket handlers.
type lobbyServer struct {
	cfg        *Config
	reg        *Registry
	store      *ImageStore
	videos     *VideoList
	pool       *inferencePool
	classifier Classifier
	basis      *EigenBasis
}

func newLobbyServer(cfg *Config, videos *VideoList) *lobbyServer {
	return &lobbyServer{
		cfg:        cfg,
		reg:        newRegistry(),
		store:      newImageStore(filepath.Join(cfg.mediaDir, "lobby_images")),
		videos:     videos,
		pool:       newInferencePool(cfg.inferenceWorkers, cfg.inferenceTimeout),
		classifier: neutralClassifier{},
		basis:      defaultEigenBasis(),
	}
}

// Client is the per-connection session. It lives exactly as long as the
// underlying connection. mu serializes queueing against shutdown so no
// send can race the channel close.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	lobby    *Lobby
	username string
	token    string
	role     string

	mu     sync.Mutex
	closed bool
}

// enqueue queues a message for this connection. Messages to a closed or
// backed-up connection are dropped rather than blocking the caller;
// returns whether the message was accepted.
func (c *Client) enqueue(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown closes the outbound channel; writePump drains any queued
// messages and then closes the socket. Safe to call more than once and
// concurrently with enqueue.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendPrivate queues a message for this connection only.
func (c *Client) sendPrivate(messageType string, message any) {
	c.enqueue(newPrivateMessage(messageType, message))
}

// sendFinal queues a last notice before shutdown, evicting the oldest
// queued message if the connection is backed up. The notice is only lost
// when the connection is already closed.
func (c *Client) sendFinal(messageType string, message any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	msg := newPrivateMessage(messageType, message)
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

func (s *lobbyServer) serveLobbySocket() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		query := r.URL.Query()
		lobbyCode := query.Get("lobbyCode")
		username := query.Get("username")
		token := query.Get("token")
		role := query.Get("role")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client, code, reason := s.acceptClient(conn, lobbyCode, username, token, role)
		if client == nil {
			logf(s.cfg, "WS: Rejected %s connection from %s: %s", role, realIP(r), reason)
			closeWithReason(conn, code, reason)
			return
		}

		logf(s.cfg, "WS: %s %q connected to lobby %s from %s", role, username, lobbyCode, realIP(r))

		go client.writePump()
		client.readPump(s)
	}
}

// acceptClient runs the handshake validation chain in order, failing
// closed on the first violation. On success the client is registered in
// the lobby's group and the roster snapshot is broadcast.
func (s *lobbyServer) acceptClient(conn *websocket.Conn, lobbyCode, username, token, role string) (*Client, int, string) {
	if lobbyCode == "" || username == "" || token == "" || role == "" {
		return nil, closeMissingParameters, "missing-parameters"
	}

	lobby, ok := s.reg.get(lobbyCode)
	if !ok {
		return nil, closeLobbyNotFound, "lobby-not-found"
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	switch role {
	case roleAdmin:
		if token != lobby.adminToken {
			return nil, closeAuthFailed, "auth-failed"
		}
		switch {
		case username == lobby.hostUsername:
		case lobby.hasPlayerLocked(username):
			// Recovery path: the admin token holder may reclaim admin
			// status under a different display name, as long as that name
			// is in the lobby. Host reassignment is intentional.
			lobby.hostUsername = username
		default:
			return nil, closeAuthFailed, "auth-failed"
		}
	case rolePlayer:
		if lobby.issuedTokens[token] != username || !lobby.hasPlayerLocked(username) {
			return nil, closeAuthFailed, "auth-failed"
		}
	default:
		return nil, closeAuthFailed, "auth-failed"
	}

	if _, live := lobby.connected[token]; lobby.closed && !live {
		return nil, closeLobbyClosed, "lobby-closed"
	}

	if _, live := lobby.connected[token]; live {
		return nil, closeDuplicateToken, "duplicate-token"
	}

	if len(lobby.connected) >= lobby.settings.MaxPlayers {
		return nil, closeLobbyFull, "lobby-full"
	}

	client := &Client{
		conn:     conn,
		send:     make(chan any, 16),
		lobby:    lobby,
		username: username,
		token:    token,
		role:     role,
	}

	lobby.connected[token] = client
	lobby.touchLocked()
	lobby.broadcastLocked(lobby.snapshotEventLocked("user-connected", username, role))

	return client, 0, ""
}

// releaseClient undoes registration. It runs on every connection exit
// path; for connections that never completed the handshake it is a no-op.
func (s *lobbyServer) releaseClient(c *Client) {
	lobby := c.lobby

	lobby.mu.Lock()
	if current, ok := lobby.connected[c.token]; ok && current == c {
		delete(lobby.connected, c.token)
		lobby.touchLocked()
		lobby.broadcastLocked(lobby.snapshotEventLocked("user-disconnected", c.username, c.role))
	}
	lobby.mu.Unlock()

	c.shutdown()
}

func (c *Client) readPump(s *lobbyServer) {
	defer func() {
		s.releaseClient(c)
		_ = c.conn.Close()
	}()

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		s.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch routes an inbound message. Admin-only actions from other roles
// are answered with a permission error, never silently ignored.
func (s *lobbyServer) dispatch(c *Client, msg inboundMessage) {
	switch msg.Type {
	case msgChat:
		s.handleChat(c, msg.Payload)
	case msgLeave:
		s.handleLeave(c)
	case msgUploadImage:
		s.handleUploadImage(c, msg.Payload)
	case msgFaceFrame:
		s.handleFaceFrame(c, msg.Payload)
	case msgKick, msgStartGame, msgCloseLobby, msgDisband, msgMute, msgUnmute,
		msgChangeSettings, msgFaceSettings, msgRequestFaceSettings, msgNewRoundVideo:
		if c.role != roleAdmin {
			c.sendPrivate("error", "You don't have permission for this action.")
			return
		}
		switch msg.Type {
		case msgKick:
			s.handleKick(c, msg.Payload)
		case msgStartGame:
			s.handleStartGame(c)
		case msgCloseLobby:
			s.handleCloseLobby(c)
		case msgDisband:
			s.handleDisband(c)
		case msgMute:
			s.handleMute(c, msg.Payload)
		case msgUnmute:
			s.handleUnmute(c, msg.Payload)
		case msgChangeSettings:
			s.handleChangeSettings(c, msg.Payload)
		case msgFaceSettings:
			s.handleFaceSettings(c, msg.Payload)
		case msgRequestFaceSettings:
			s.handleRequestFaceSettings(c)
		case msgNewRoundVideo:
			s.handleNewRoundVideo(c)
		}
	default:
		c.sendPrivate("error", fmt.Sprintf("Unknown message type: %q", msg.Type))
	}
}
