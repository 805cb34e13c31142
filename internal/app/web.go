// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/shot_node/internal/event"
)

const (
	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 16

	// requests from the API wait at most this long for queue space
	postTimeout = time.Second

	mdnsService = "_shotnode._tcp"
	mdnsDomain  = "local."
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local network only
	},
}

// Poster is the blocking side of event.Queue.
type Poster interface {
	Post(ctx context.Context, ev event.Event) error
}

// StatusServer serves the node status, accepts sampling mode changes and
// calibration start/stop, and streams reports to websocket clients.
type StatusServer struct {
	status func() Status
	post   Poster

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewStatusServer(status func() Status, post Poster) *StatusServer {
	return &StatusServer{
		status:  status,
		post:    post,
		clients: make(map[*wsClient]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sampling", s.handleSampling)
	mux.HandleFunc("/api/calibration", s.handleCalibration)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleSampling accepts POST /api/sampling?mode=auto|on|off.
func (s *StatusServer) handleSampling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mode, err := event.ParseSamplingMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.postEvent(w, r, event.SamplingModeChange{Mode: mode})
}

// handleCalibration accepts POST /api/calibration?action=start|stop, the
// same events the button gestures post.
func (s *StatusServer) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev event.Event
	switch action := r.URL.Query().Get("action"); action {
	case "start":
		ev = event.CalibrateStart{}
	case "stop":
		ev = event.CalibrateStop{}
	default:
		http.Error(w, fmt.Sprintf("unknown action %q (want start or stop)", action), http.StatusBadRequest)
		return
	}
	s.postEvent(w, r, ev)
}

func (s *StatusServer) postEvent(w http.ResponseWriter, r *http.Request, ev event.Event) {
	ctx, cancel := context.WithTimeout(r.Context(), postTimeout)
	defer cancel()
	if err := s.post.Post(ctx, ev); err != nil {
		log.Debugf("web: post %s: %v", ev.Tag(), err)
		http.Error(w, "node busy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *StatusServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	// the first message is the current status
	hello, err := json.Marshal(s.status())
	if err == nil {
		c.send <- hello
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	log.Debugf("web: websocket client connected (%d total)", n)

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards client messages and unregisters the client when the
// connection closes.
func (s *StatusServer) readPump(c *wsClient) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			delete(s.clients, c)
			close(c.send)
		}
		s.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("web: websocket read error: %v", err)
			}
			return
		}
	}
}

func (s *StatusServer) writePump(c *wsClient) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Send broadcasts r to every websocket client. Slow clients miss reports.
func (s *StatusServer) Send(r Report) {
	msg, err := json.Marshal(r)
	if err != nil {
		log.Printf("web: marshal report: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			log.Debugln("web: websocket client too slow, report dropped")
		}
	}
}

// Run serves on port until ctx is done. With mdns set the server is also
// advertised as _shotnode._tcp.
func (s *StatusServer) Run(ctx context.Context, port int, mdns bool) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if mdns {
		if adv, err := advertise(port); err != nil {
			log.Warnf("web: mDNS registration failed: %v", err)
		} else {
			defer adv.Shutdown()
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func advertise(port int) (*zeroconf.Server, error) {
	host, _ := os.Hostname()
	if host == "" {
		host = "shot-node"
	}
	srv, err := zeroconf.Register(host, mdnsService, mdnsDomain, port,
		[]string{"version=1", "path=/api/status"}, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("web: advertised %s.%s%s on port %d", host, mdnsService, mdnsDomain, port)
	return srv, nil
}
