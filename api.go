package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type createLobbyRequest struct {
	Username   string `json:"username"`
	LobbyName  string `json:"lobbyName"`
	MaxPlayers int    `json:"maxPlayers"`
	Rounds     int    `json:"rounds"`
}

type joinLobbyRequest struct {
	Username string `json:"username"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(cfg *Config, w http.ResponseWriter, status int, message string) {
	writeJSON(cfg, w, status, map[string]string{"error": message})
}

// serveCreateLobby mints a lobby: the creator becomes host and first
// player, and the admin token doubles as their issued token.
func serveCreateLobby(cfg *Config, srv *lobbyServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(cfg, w, http.StatusBadRequest, "Invalid JSON payload.")
			return
		}

		if req.Username == "" || req.LobbyName == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Missing or invalid parameters. Required: username, lobbyName, maxPlayers, rounds.")
			return
		}
		if req.MaxPlayers < 2 || req.MaxPlayers > 50 {
			writeAPIError(cfg, w, http.StatusBadRequest, "maxPlayers must be between 2 and 50.")
			return
		}
		if req.Rounds < 1 || req.Rounds > 10 {
			writeAPIError(cfg, w, http.StatusBadRequest, "rounds must be between 1 and 10.")
			return
		}

		lobby := srv.reg.create(req.LobbyName, req.Username, Settings{
			MaxPlayers: req.MaxPlayers,
			Rounds:     req.Rounds,
		})

		logf(cfg, "LOBBY: Created %s (%q) for %s", lobby.code, req.LobbyName, realIP(r))

		writeJSON(cfg, w, http.StatusCreated, map[string]any{
			"message":    fmt.Sprintf("Lobby %q created successfully.", req.LobbyName),
			"lobbyCode":  lobby.code,
			"adminToken": lobby.adminToken,
			"username":   req.Username,
		})
	}
}

// serveJoinLobby appends a player (HTTP capacity check only) and issues
// the token their socket connection will present.
func serveJoinLobby(cfg *Config, srv *lobbyServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("code")

		var req joinLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeAPIError(cfg, w, http.StatusBadRequest, "Username is required.")
			return
		}

		lobby, ok := srv.reg.get(code)
		if !ok {
			writeAPIError(cfg, w, http.StatusNotFound, fmt.Sprintf("Lobby %q not found.", code))
			return
		}

		lobby.mu.Lock()

		if !lobby.hasPlayerLocked(req.Username) {
			if len(lobby.players) >= lobby.settings.MaxPlayers {
				lobby.mu.Unlock()
				writeAPIError(cfg, w, http.StatusBadRequest, fmt.Sprintf("Lobby %q is full.", code))
				return
			}
			lobby.players = append(lobby.players, req.Username)
		}

		token := newToken()
		lobby.issuedTokens[token] = req.Username
		lobby.touchLocked()

		players := append([]string(nil), lobby.players...)
		name := lobby.name

		lobby.mu.Unlock()

		logf(cfg, "LOBBY: %q joined %s", req.Username, code)

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"message":     fmt.Sprintf("Successfully joined lobby %q.", code),
			"username":    req.Username,
			"lobbyCode":   code,
			"lobbyName":   name,
			"players":     players,
			"playerToken": token,
		})
	}
}

func serveLobbyInfo(cfg *Config, srv *lobbyServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("code")

		lobby, ok := srv.reg.get(code)
		if !ok {
			writeAPIError(cfg, w, http.StatusNotFound, fmt.Sprintf("Lobby %q not found.", code))
			return
		}

		lobby.mu.Lock()
		info := map[string]any{
			"lobbyCode":    lobby.code,
			"lobbyName":    lobby.name,
			"hostUsername": lobby.hostUsername,
			"settings":     lobby.settings,
			"players":      append([]string(nil), lobby.players...),
			"gameState":    lobby.game,
		}
		lobby.mu.Unlock()

		writeJSON(cfg, w, http.StatusOK, info)
	}
}

// serveLobbyQR renders a share code for joining the lobby.
func serveLobbyQR(cfg *Config, srv *lobbyServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code := p.ByName("code")

		if _, ok := srv.reg.get(code); !ok {
			writeAPIError(cfg, w, http.StatusNotFound, fmt.Sprintf("Lobby %q not found.", code))
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		path := strings.TrimSuffix(r.URL.Path, "/qr")
		url := scheme + "://" + r.Host + path

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			writeAPIError(cfg, w, http.StatusInternalServerError, "QR generation failed.")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func registerLobbyAPI(cfg *Config, srv *lobbyServer, mux *httprouter.Router) {
	mux.POST(cfg.prefix+"/api/lobby", serveCreateLobby(cfg, srv))
	mux.POST(cfg.prefix+"/api/lobby/:code/join", serveJoinLobby(cfg, srv))
	mux.GET(cfg.prefix+"/api/lobby/:code", serveLobbyInfo(cfg, srv))
	mux.GET(cfg.prefix+"/api/lobby/:code/qr", serveLobbyQR(cfg, srv))
}
