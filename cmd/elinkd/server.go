package main

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/sirupsen/logrus"

	"elink"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server exposes a dashboard and a thin REST surface over a Registry and
// Store: add/remove printers, connect/disconnect, issue print commands,
// and a live WebSocket status feed. It owns no printer-domain state of
// its own beyond the catalog in Store.
type Server struct {
	registry *elink.Registry
	store    *Store
	router   *gin.Engine
	wsHub    *wsHub
	log      *logrus.Entry

	printerMu sync.RWMutex
	lastKnown map[string]elink.ConnectionStatus
}

// NewServer wires a dashboard/API server around an already-initialized
// Registry and Store.
func NewServer(registry *elink.Registry, store *Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		registry:  registry,
		store:     store,
		router:    router,
		wsHub:     newWSHub(),
		log:       logrus.WithField("component", "elinkd"),
		lastKnown: make(map[string]elink.ConnectionStatus),
	}

	go s.wsHub.run()
	registry.SetPrinterConnectionCallback(s.onConnectionChanged)
	registry.SetPrinterEventCallback(s.onPrinterEvent)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	tmpl := template.Must(template.New("").ParseFS(templatesFS, "templates/*"))
	s.router.SetHTMLTemplate(tmpl)

	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		s.log.WithError(err).Fatal("failed to build static filesystem")
	}
	s.router.StaticFS("/static", http.FS(staticSubFS))

	s.router.GET("/", s.dashboardHandler)
	s.router.GET("/ws", s.websocketHandler)

	api := s.router.Group("/api")
	{
		api.GET("/printers", s.listPrintersHandler)
		api.POST("/printers", s.addPrinterHandler)
		api.DELETE("/printers/:id", s.removePrinterHandler)
		api.POST("/printers/:id/connect", s.connectPrinterHandler)
		api.POST("/printers/:id/disconnect", s.disconnectPrinterHandler)
		api.POST("/printers/:id/start-print", s.startPrintHandler)
		api.GET("/printers/:id/pair-qr", s.pairQRHandler)
	}
}

// Run starts the HTTP server on addr, blocking until ctx is canceled or
// the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type dashboardRow struct {
	ID     string
	Name   string
	Type   string
	Status string
}

func (s *Server) dashboardHandler(c *gin.Context) {
	cached := s.registry.GetCachedPrinters()
	rows := make([]dashboardRow, 0, len(cached))
	for _, info := range cached {
		status := "DISCONNECTED"
		if session := s.registry.GetPrinter(info.PrinterID); session != nil {
			status = session.ConnectionStatus().String()
		}
		rows = append(rows, dashboardRow{ID: info.PrinterID, Name: info.Name, Type: string(info.PrinterType), Status: status})
	}
	c.HTML(http.StatusOK, "dashboard.html", gin.H{"Printers": rows})
}

func (s *Server) listPrintersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.GetCachedPrinters())
}

type addPrinterRequest struct {
	PrinterID   string `json:"printer_id" binding:"required"`
	Name        string `json:"name"`
	PrinterType string `json:"printer_type" binding:"required"`
	Host        string `json:"host" binding:"required"`
	Port        int    `json:"port" binding:"required"`
}

func (s *Server) addPrinterHandler(c *gin.Context) {
	var req addPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info := elink.PrinterInfo{
		PrinterID:   req.PrinterID,
		Name:        req.Name,
		PrinterType: elink.PrinterType(req.PrinterType),
		Host:        req.Host,
		Port:        req.Port,
	}

	if _, err := s.registry.CreatePrinter(info); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Upsert(info); err != nil {
		s.log.WithError(err).Warn("failed to persist printer catalog entry")
	}

	c.JSON(http.StatusCreated, info)
}

func (s *Server) removePrinterHandler(c *gin.Context) {
	id := c.Param("id")
	s.registry.RemovePrinter(id)
	if err := s.store.Remove(id); err != nil {
		s.log.WithError(err).Warn("failed to remove printer catalog entry")
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) connectPrinterHandler(c *gin.Context) {
	id := c.Param("id")
	session := s.registry.GetPrinter(id)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown printer"})
		return
	}

	info := session.Info()
	result := session.Connect(c.Request.Context(), elink.ConnectPrinterParams{Host: info.Host, Port: info.Port})
	c.JSON(http.StatusOK, result)
}

func (s *Server) disconnectPrinterHandler(c *gin.Context) {
	id := c.Param("id")
	session := s.registry.GetPrinter(id)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown printer"})
		return
	}
	c.JSON(http.StatusOK, session.Disconnect(c.Request.Context()))
}

type startPrintRequest struct {
	FileName   string `json:"file_name" binding:"required"`
	ToolheadID int    `json:"toolhead_id"`
}

func (s *Server) startPrintHandler(c *gin.Context) {
	id := c.Param("id")
	session := s.registry.GetPrinter(id)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown printer"})
		return
	}

	var req startPrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := session.StartPrint(c.Request.Context(), elink.StartPrintParams{FileName: req.FileName, ToolheadID: req.ToolheadID}, 0)
	if result.Code == elink.ErrorCodeOK {
		if err := s.store.RecordPrintStarted(id, req.FileName); err != nil {
			s.log.WithError(err).Warn("failed to record print history")
		}
	}
	c.JSON(http.StatusOK, result)
}

// pairQRHandler returns a PNG QR code encoding a pairing URI for the
// given printer id, the way a mobile companion app would scan to learn
// which printer to attach to without the user typing a host/port by
// hand.
func (s *Server) pairQRHandler(c *gin.Context) {
	id := c.Param("id")
	session := s.registry.GetPrinter(id)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown printer"})
		return
	}

	info := session.Info()
	payload := fmt.Sprintf("elink://pair?id=%s&host=%s&port=%d", info.PrinterID, info.Host, info.Port)

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// onConnectionChanged is the Registry's connection callback: it tracks
// the last-known status per printer and broadcasts a status_update to
// every dashboard websocket client.
func (s *Server) onConnectionChanged(printerID string, status elink.ConnectionStatus) {
	s.printerMu.Lock()
	s.lastKnown[printerID] = status
	snapshot := make(map[string]string, len(s.lastKnown))
	for id, st := range s.lastKnown {
		snapshot[id] = st.String()
	}
	s.printerMu.Unlock()

	s.broadcastStatus(snapshot)
}

// onPrinterEvent is the Registry's event callback: every printer-pushed
// event (job progress, errors) is forwarded to dashboard clients
// base64-wrapped, since its payload shape varies by printer family.
func (s *Server) onPrinterEvent(printerID string, event elink.BizEvent) {
	msg := map[string]any{
		"type":       "printer_event",
		"printer_id": printerID,
		"kind":       event.Kind,
		"payload":    base64.StdEncoding.EncodeToString(event.Payload),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal printer event for broadcast")
		return
	}
	s.wsHub.broadcast(raw)
}

func (s *Server) broadcastStatus(statuses map[string]string) {
	msg := map[string]any{
		"type":      "status_update",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"printers":  statuses,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal status broadcast")
		return
	}
	s.wsHub.broadcast(raw)
}

func (s *Server) websocketHandler(c *gin.Context) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{hub: s.wsHub, conn: conn, send: make(chan []byte, 16)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// wsHub fans broadcast messages out to every registered dashboard client,
// the way needo37-filabridge's WebSocketHub did — a client whose send
// buffer is full is dropped rather than allowed to block the broadcast.
type wsHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcastC chan []byte
	mu         sync.RWMutex
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcastC: make(chan []byte),
	}
}

func (h *wsHub) broadcast(message []byte) {
	h.broadcastC <- message
}

func (h *wsHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcastC:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
