// ABOUTME: WebSocket remote control server
// ABOUTME: Maps JSON commands onto the controller and streams events back; serves /metrics
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/harperreed/cuebox/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPingInterval keeps idle connections alive
	DefaultPingInterval = 30 * time.Second

	writeDeadline = 10 * time.Second
	sendBuffer    = 64
)

// Controller is the part of the application the remote drives
type Controller interface {
	RequestNamed(clip string, kind backend.Kind, device string) uuid.UUID
	RequestNext(kind backend.Kind, device string) uuid.UUID
	ClearPending()
	SelectDevice(index int) (backend.Device, error)
	ArmPeriodic(ms int) error
	DisarmPeriodic()
	PeriodicArmed() bool
	ClipNames() []string
	Devices() []backend.Device
	Subscribe(buffer int) (<-chan scheduler.Event, func())
}

// Config holds server configuration
type Config struct {
	Listen       string
	Name         string
	Gatherer     prometheus.Gatherer
	PingInterval time.Duration
}

// Server accepts remote control connections
type Server struct {
	config   Config
	ctrl     Controller
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clientsMu sync.RWMutex
	clients   map[string]*client
	closing   bool

	addrMu sync.RWMutex
	addr   net.Addr

	wg sync.WaitGroup
}

// client is one connected controller
type client struct {
	id   string
	conn *websocket.Conn
	send chan outbound
	done chan struct{}
}

// NewServer creates a remote control server
func NewServer(ctrl Controller, config Config) *Server {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Name == "" {
		config.Name = version.Product
	}

	s := &Server{
		config: config,
		ctrl:   ctrl,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Control clients live on the local network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	return s
}

// Handler exposes the HTTP routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the bound listener address once Serve is running
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Serve listens on config.Listen until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("remote listen %s: %w", s.config.Listen, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()
	log.Infof("Remote control listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("remote server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Remote server shutdown error: %v", err)
	}
	s.closeClients()
	s.wg.Wait()
	log.Info("Remote control stopped")
	return nil
}

// closeClients closes every connection and refuses new ones; hijacked
// sockets are not closed by Shutdown
func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.closing = true
	for _, c := range s.clients {
		c.conn.Close()
	}
}

// register adds c unless the server is closing. A registered client holds
// one count on wg until unregister.
func (s *Server) register(c *client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	s.wg.Done()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	log.Debugf("Remote connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}

	if !s.register(c) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
		log.Debug("Refused remote connection during shutdown")
		return
	}

	events, unsubscribe := s.ctrl.Subscribe(sendBuffer)
	defer func() {
		unsubscribe()
		close(c.done)
		s.unregister(c)
		log.Debugf("Remote client disconnected: %s", c.id)
	}()

	s.send(c, TypeHello, s.hello(c.id))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()
	go func() {
		defer s.wg.Done()
		s.forwardEvents(c, events)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("Remote read error: %v", err)
			}
			return
		}
		s.handleMessage(c, data)
	}
}

func (s *Server) hello(id string) Hello {
	devices := s.ctrl.Devices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{Index: d.Index, Name: d.Name})
	}
	return Hello{
		ClientID: id,
		Name:     s.config.Name,
		Version:  version.Version,
		Clips:    s.ctrl.ClipNames(),
		Devices:  infos,
		Periodic: s.ctrl.PeriodicArmed(),
	}
}

// clientWriter owns all data frames written to c
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Warnf("Remote marshal error: %v", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) forwardEvents(c *client, events <-chan scheduler.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.send(c, TypeEvent, NewEventPayload(ev))
		case <-c.done:
			return
		}
	}
}

// send queues a frame; a full buffer drops it
func (s *Server) send(c *client, msgType string, payload interface{}) {
	select {
	case c.send <- outbound{Type: msgType, Payload: payload}:
	case <-c.done:
	default:
		log.Warnf("Remote client %s send buffer full, dropping %s", c.id, msgType)
	}
}

func (s *Server) handleMessage(c *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.send(c, TypeError, ErrorPayload{Message: fmt.Sprintf("invalid message: %v", err)})
		return
	}

	ack, err := s.dispatch(msg)
	if err != nil {
		log.WithFields(log.Fields{"client": c.id, "command": msg.Type}).Warnf("Remote command rejected: %v", err)
		s.send(c, TypeError, ErrorPayload{Command: msg.Type, Message: err.Error()})
		return
	}
	ack.Command = msg.Type
	s.send(c, TypeAck, ack)
}

// dispatch applies one command to the controller
func (s *Server) dispatch(msg Message) (Ack, error) {
	switch msg.Type {
	case TypePlay:
		var cmd PlayCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return Ack{}, err
		}
		if cmd.Clip == "" {
			return Ack{}, fmt.Errorf("clip is required")
		}
		kind, err := backend.ParseKind(cmd.Backend)
		if err != nil {
			return Ack{}, err
		}
		id := s.ctrl.RequestNamed(cmd.Clip, kind, cmd.Device)
		return Ack{RequestID: id.String()}, nil

	case TypeNext:
		var cmd NextCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return Ack{}, err
		}
		kind, err := backend.ParseKind(cmd.Backend)
		if err != nil {
			return Ack{}, err
		}
		id := s.ctrl.RequestNext(kind, cmd.Device)
		return Ack{RequestID: id.String()}, nil

	case TypeClear:
		s.ctrl.ClearPending()
		return Ack{}, nil

	case TypeDeviceSelect:
		var cmd DeviceSelectCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return Ack{}, err
		}
		dev, err := s.ctrl.SelectDevice(cmd.Index)
		if err != nil {
			return Ack{}, err
		}
		return Ack{Device: dev.Name}, nil

	case TypePeriodicStart:
		var cmd PeriodicStartCommand
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return Ack{}, err
		}
		if err := s.ctrl.ArmPeriodic(cmd.IntervalMs); err != nil {
			return Ack{}, err
		}
		return Ack{}, nil

	case TypePeriodicStop:
		s.ctrl.DisarmPeriodic()
		return Ack{}, nil

	default:
		return Ack{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
