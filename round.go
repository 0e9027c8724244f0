package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

func (s *lobbyServer) handleChat(c *Client, payload json.RawMessage) {
	var chat chatPayload
	if err := json.Unmarshal(payload, &chat); err != nil || chat.Text == "" {
		c.sendPrivate("error", "Chat message requires text.")
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	if lobby.muted[c.username] {
		c.sendPrivate("error", "You are muted and cannot send messages.")
		return
	}

	if lobby.settings.TextDisabled {
		c.sendPrivate("error", "Text channel is disabled.")
		return
	}

	lobby.broadcastLocked(map[string]any{
		"event":          "chat-message",
		"message":        chat.Text,
		"senderUsername": c.username,
		"senderRole":     c.role,
	})
}

func (s *lobbyServer) handleLeave(c *Client) {
	lobby := c.lobby

	lobby.mu.Lock()
	lobby.touchLocked()

	// The host stays in the roster for as long as the lobby exists.
	if c.username == lobby.hostUsername {
		lobby.mu.Unlock()
		c.sendPrivate("error", "The admin cannot leave the lobby. Disband it instead.")
		return
	}

	lobby.removePlayerLocked(c.username)
	lobby.broadcastLocked(lobby.snapshotEventLocked("user-left", c.username, c.role))
	delete(lobby.connected, c.token)
	lobby.mu.Unlock()

	logf(s.cfg, "GAME: %q left lobby %s", c.username, lobby.code)

	c.shutdown()
}

func (s *lobbyServer) handleKick(c *Client, payload json.RawMessage) {
	var target targetPayload
	if err := json.Unmarshal(payload, &target); err != nil || target.Username == "" {
		c.sendPrivate("error", "Username required for kick action.")
		return
	}

	reason := target.Reason
	if reason == "" {
		reason = "You have been kicked from the lobby."
	}

	lobby := c.lobby
	lobby.mu.Lock()

	lobby.touchLocked()

	if target.Username == lobby.hostUsername {
		lobby.mu.Unlock()
		c.sendPrivate("error", "Cannot kick the lobby admin.")
		return
	}

	if !lobby.hasPlayerLocked(target.Username) {
		lobby.mu.Unlock()
		c.sendPrivate("error", fmt.Sprintf("Player %q is not in the lobby.", target.Username))
		return
	}

	lobby.removePlayerLocked(target.Username)

	var kicked []*Client
	for token, client := range lobby.connected {
		if client.username == target.Username {
			delete(lobby.connected, token)
			client.sendFinal("kicked", reason)
			kicked = append(kicked, client)
		}
	}

	event := lobby.snapshotEventLocked("player-kicked", c.username, c.role)
	event["kickedUsername"] = target.Username
	event["reason"] = reason
	lobby.broadcastLocked(event)

	lobby.mu.Unlock()

	for _, client := range kicked {
		client.shutdown()
	}

	logf(s.cfg, "GAME: %q kicked from lobby %s", target.Username, lobby.code)
}

func (s *lobbyServer) handleStartGame(c *Client) {
	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	if lobby.game.Status == statusPlaying || lobby.game.Status == statusFinished {
		c.sendPrivate("error", "The game has already started.")
		return
	}

	unverified := lobby.unverifiedLocked()
	if len(unverified) > 0 {
		c.sendPrivate("error", fmt.Sprintf(
			"Cannot start game. The following players haven't submitted their photos: %s",
			strings.Join(unverified, ", ")))
		return
	}

	lobby.laughMeters = make(map[string]float64, len(lobby.players))
	for _, player := range lobby.players {
		lobby.laughMeters[player] = 0.0
	}

	lobby.game = GameState{
		Status:          statusPlaying,
		Round:           1,
		VerifiedPlayers: append([]string(nil), lobby.verified...),
	}

	lobby.broadcastLocked(map[string]any{
		"event":           "game-started",
		"message":         fmt.Sprintf("The game has started with %d verified players!", len(lobby.verified)),
		"startedBy":       c.username,
		"verifiedPlayers": append([]string(nil), lobby.verified...),
	})

	logf(s.cfg, "GAME: Lobby %s started with %d players", lobby.code, len(lobby.players))
}

func (s *lobbyServer) handleCloseLobby(c *Client) {
	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()
	lobby.closed = true

	lobby.broadcastLocked(map[string]any{
		"event":   "lobby-closed",
		"message": "Lobby is now closed for new connections.",
	})
}

func (s *lobbyServer) handleDisband(c *Client) {
	s.disbandLobby(c.lobby, "The lobby has been disbanded by the admin.")
}

// disbandLobby broadcasts a disband notice, deletes the lobby's image
// assets, removes it from the registry, and closes every live connection.
func (s *lobbyServer) disbandLobby(lobby *Lobby, message string) {
	lobby.mu.Lock()

	lobby.broadcastLocked(map[string]any{
		"event":   "lobby-disbanded",
		"message": message,
	})

	clients := make([]*Client, 0, len(lobby.connected))
	for _, client := range lobby.connected {
		clients = append(clients, client)
	}
	lobby.connected = make(map[string]*Client)

	lobby.mu.Unlock()

	if err := s.store.DeleteLobby(lobby.code); err != nil {
		logf(s.cfg, "LOBBY: Failed to delete images for %s: %v", lobby.code, err)
	}

	s.reg.delete(lobby.code)

	for _, client := range clients {
		client.shutdown()
	}

	logf(s.cfg, "LOBBY: Disbanded %s", lobby.code)
}

func (s *lobbyServer) handleMute(c *Client, payload json.RawMessage) {
	s.setMuted(c, payload, true)
}

func (s *lobbyServer) handleUnmute(c *Client, payload json.RawMessage) {
	s.setMuted(c, payload, false)
}

func (s *lobbyServer) setMuted(c *Client, payload json.RawMessage, muted bool) {
	action := "mute"
	if !muted {
		action = "unmute"
	}

	var target targetPayload
	if err := json.Unmarshal(payload, &target); err != nil || target.Username == "" {
		c.sendPrivate("error", fmt.Sprintf("Username required for %s action.", action))
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	if target.Username == lobby.hostUsername {
		c.sendPrivate("error", fmt.Sprintf("Cannot %s the lobby admin.", action))
		return
	}

	if !lobby.hasPlayerLocked(target.Username) {
		c.sendPrivate("error", fmt.Sprintf("Player %q is not in the lobby.", target.Username))
		return
	}

	if muted {
		lobby.muted[target.Username] = true
	} else {
		delete(lobby.muted, target.Username)
	}

	for _, client := range lobby.connected {
		if client.username == target.Username {
			if muted {
				client.sendPrivate("muted", "You have been muted by the admin.")
			} else {
				client.sendPrivate("unmuted", "You have been unmuted by the admin.")
			}
			break
		}
	}

	c.sendPrivate("success", fmt.Sprintf("Player %s has been %sd.", target.Username, action))
}

// handleChangeSettings applies the subset of requested fields that pass
// their individual range checks. An error is reported only when no field
// was valid.
func (s *lobbyServer) handleChangeSettings(c *Client, payload json.RawMessage) {
	var req settingsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendPrivate("error", "Invalid settings payload.")
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	var changes []string

	if req.MaxPlayers != nil && *req.MaxPlayers >= 2 && *req.MaxPlayers <= 50 {
		lobby.settings.MaxPlayers = *req.MaxPlayers
		changes = append(changes, fmt.Sprintf("Max players: %d", *req.MaxPlayers))
	}

	if req.Rounds != nil && *req.Rounds >= 1 && *req.Rounds <= 10 {
		lobby.settings.Rounds = *req.Rounds
		changes = append(changes, fmt.Sprintf("Rounds: %d", *req.Rounds))
	}

	if req.TextDisabled != nil {
		lobby.settings.TextDisabled = *req.TextDisabled
		state := "enabled"
		if *req.TextDisabled {
			state = "disabled"
		}
		changes = append(changes, "Text channel: "+state)
	}

	if len(changes) == 0 {
		c.sendPrivate("error", "No valid settings to change.")
		return
	}

	event := lobby.snapshotEventLocked("settings-changed", c.username, c.role)
	event["message"] = "Lobby settings updated: " + strings.Join(changes, ", ")
	event["changes"] = changes
	lobby.broadcastLocked(event)
}

// handleUploadImage persists the player's face photo and marks them
// verified. While a round is in progress the same upload instead feeds
// the emotion evaluation path.
func (s *lobbyServer) handleUploadImage(c *Client, payload json.RawMessage) {
	var req imagePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ImageData == "" {
		c.sendPrivate("error", "No image data provided.")
		return
	}

	// Decode and persist outside the lobby lock; only the bookkeeping
	// below needs serialization.
	filename, err := s.store.Save(c.lobby.code, c.username, req.ImageData)
	if err != nil {
		logf(s.cfg, "GAME: Image save failed for %q in %s: %v", c.username, c.lobby.code, err)
		c.sendPrivate("error", "Failed to save image. Please try again.")
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()

	lobby.touchLocked()

	if !lobby.isVerifiedLocked(c.username) {
		lobby.verified = append(lobby.verified, c.username)
	}
	lobby.playerImages[c.username] = filename

	playing := lobby.game.Status == statusPlaying

	if !playing {
		if lobby.game.Status == statusIdle {
			lobby.game.Status = statusVerifying
		}

		event := lobby.snapshotEventLocked("player-verified", c.username, c.role)
		event["verifiedUsernames"] = append([]string(nil), lobby.verified...)
		lobby.broadcastLocked(event)
	}

	lobby.mu.Unlock()

	if !playing {
		c.sendPrivate("success", "Profile picture uploaded successfully!")
		return
	}

	s.evaluateEmotion(c)
}

// evaluateEmotion classifies the player's stored face image and bumps
// their laugh meter on a positive-affect label. Inference failures are
// skipped frames, not hard errors.
func (s *lobbyServer) evaluateEmotion(c *Client) {
	lobby := c.lobby

	face, err := s.store.Load48(lobby.code, c.username)
	if err == nil {
		_, err = s.laughDetector().Observe(context.Background(), lobby, c.username, face)
	}
	if err != nil {
		logf(s.cfg, "GAME: Skipped frame for %q in %s: %v", c.username, lobby.code, err)
	}

	lobby.mu.Lock()
	meters := make(map[string]float64, len(lobby.laughMeters))
	for player, meter := range lobby.laughMeters {
		meters[player] = meter
	}
	lobby.mu.Unlock()

	c.sendPrivate("emotion-update", meters)
}

func (s *lobbyServer) handleFaceSettings(c *Client, payload json.RawMessage) {
	var req faceSettingsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendPrivate("error", "Invalid face detection settings payload.")
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	if req.Enabled != nil {
		lobby.facedetect.Enabled = *req.Enabled
	}
	if req.RequiredMode != nil && (*req.RequiredMode == modeDrift || *req.RequiredMode == modeEmotion) {
		lobby.facedetect.RequiredMode = *req.RequiredMode
	}
	if req.DetectionFrequency != nil {
		frequency := *req.DetectionFrequency
		if frequency < 1 {
			frequency = 1
		}
		lobby.facedetect.DetectionFrequency = frequency
	}
	if req.BroadcastToAll != nil {
		lobby.facedetect.BroadcastToAll = *req.BroadcastToAll
	}

	lobby.broadcastLocked(map[string]any{
		"event":    "face-detection-settings",
		"settings": lobby.facedetect,
	})

	c.sendPrivate("success", "Face detection settings updated!")
}

func (s *lobbyServer) handleRequestFaceSettings(c *Client) {
	lobby := c.lobby
	lobby.mu.Lock()
	settings := lobby.facedetect
	lobby.mu.Unlock()

	c.sendPrivate("face-detection-settings", settings)
}

// handleFaceFrame feeds a webcam frame to the lobby's configured change
// detector for this player.
func (s *lobbyServer) handleFaceFrame(c *Client, payload json.RawMessage) {
	var req imagePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ImageData == "" {
		c.sendPrivate("error", "No image data provided.")
		return
	}

	lobby := c.lobby
	lobby.mu.Lock()
	settings := lobby.facedetect
	lobby.mu.Unlock()

	if !settings.Enabled {
		c.sendPrivate("error", "Face detection is not enabled for this lobby.")
		return
	}

	face, err := decodeFace(req.ImageData)
	if err != nil {
		logf(s.cfg, "GAME: Skipped frame for %q in %s: %v", c.username, lobby.code, err)
		return
	}

	detected, err := s.detectorFor(settings.RequiredMode).Observe(context.Background(), lobby, c.username, face)
	if err != nil {
		logf(s.cfg, "GAME: Skipped frame for %q in %s: %v", c.username, lobby.code, err)
		return
	}

	if !detected {
		return
	}

	c.sendPrivate("change-detected", "Significant facial change detected.")

	if settings.BroadcastToAll {
		lobby.mu.Lock()
		lobby.broadcastLocked(map[string]any{
			"event":    "change-detected",
			"username": c.username,
		})
		lobby.mu.Unlock()
	}
}

// handleNewRoundVideo hands the admin the next clip URL and advances the
// round. Exceeding the configured round count ends the game instead.
func (s *lobbyServer) handleNewRoundVideo(c *Client) {
	lobby := c.lobby
	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	lobby.touchLocked()

	if lobby.game.Round+1 > lobby.settings.Rounds {
		lobby.game.Status = statusFinished
		c.sendPrivate("success", "Game over!")
		return
	}

	url, ok := s.videos.At(lobby.videoIndex)
	if !ok {
		c.sendPrivate("error", "No more videos available.")
		return
	}

	lobby.videoIndex++
	lobby.game.Round++

	lobby.broadcastLocked(map[string]any{
		"event": "round-video",
		"url":   url,
		"round": lobby.game.Round,
	})
}
