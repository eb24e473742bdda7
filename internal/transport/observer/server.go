// Package observer serves a read-only websocket feed of tick frames.
package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

type Options struct {
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
	// Queue is the per-client frame buffer; the oldest frame is dropped when full.
	Queue  int
	Logger *log.Logger
}

func (o *Options) applyDefaults() {
	if o.Queue <= 0 {
		o.Queue = 8
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
}

type Server struct {
	opts     Options
	log      *log.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[uint64]chan []byte
	latest []byte
	nextID atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewServer(opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[uint64]chan []byte{},
	}
}

// Publish fans f out to every client and keeps it for late joiners.
func (s *Server) Publish(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Printf("observer: marshal frame: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = b
	s.published.Add(1)
	for _, ch := range s.subs {
		if sendLatest(ch, b) {
			s.dropped.Add(1)
		}
	}
}

type Stats struct {
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	return Stats{Clients: n, Published: s.published.Load(), Dropped: s.dropped.Load()}
}

func (s *Server) subscribe() (uint64, chan []byte) {
	id := s.nextID.Add(1)
	ch := make(chan []byte, s.opts.Queue)
	s.mu.Lock()
	if s.latest != nil {
		ch <- s.latest
	}
	s.subs[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Handler upgrades GET /v1/observe. Client messages are read and ignored so
// the read deadline and close frames are honored.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := s.subscribe()
		defer s.unsubscribe(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// sendLatest enqueues b, dropping the oldest queued frame when ch is full.
// It reports whether a frame was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return false
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
