package rail

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/IcebergThings/railshell/internal/icon"
	"github.com/IcebergThings/railshell/internal/logger"
)

// envelope wraps every websocket message in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// helloPayload is the first message a subscriber sends.
type helloPayload struct {
	Locale        string `json:"locale"`
	LocalMove     bool   `json:"local_move"`
	PrimaryOutput string `json:"primary_output"`
}

// iconPayload carries a raster over the wire.
type iconPayload struct {
	Window WindowID `json:"window,omitempty"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Pix    []byte   `json:"pix"`
}

// appListPayload is an AppListFrame plus its optional icon raster.
type appListPayload struct {
	AppListFrame
	Icon *iconPayload `json:"icon,omitempty"`
}

type windowMovePayload struct {
	Window WindowID `json:"window"`
	X      int      `json:"x"`
	Y      int      `json:"y"`
}

type minMaxPayload struct {
	Window WindowID `json:"window"`
	MinMaxInfo
}

type zorderPayload struct {
	Windows []WindowID `json:"windows"`
}

// WebsocketChannel implements Channel over a single-subscriber websocket
// plus a few debug HTTP endpoints. Outbound notifications are JSON
// envelopes; inbound window commands are decoded and handed to the
// command handler.
type WebsocketChannel struct {
	router   *mux.Router
	upgrader websocket.Upgrader
	log      *zerolog.Logger

	handler CommandHandler
	feed    FeedListener

	mu            sync.Mutex
	conn          *websocket.Conn
	localMove     bool
	primaryOutput string

	// allowLocalMove gates SupportsLocalMove on shell configuration.
	allowLocalMove bool
}

// NewWebsocketChannel builds the transport. handler receives inbound
// window commands; feed is told about subscriber connect/disconnect.
func NewWebsocketChannel(handler CommandHandler, feed FeedListener, allowLocalMove bool) *WebsocketChannel {
	c := &WebsocketChannel{
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:            logger.WithComponent("rail"),
		handler:        handler,
		feed:           feed,
		allowLocalMove: allowLocalMove,
	}
	c.setupRoutes()
	return c
}

func (c *WebsocketChannel) setupRoutes() {
	api := c.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", c.handleHealth).Methods("GET")
	api.HandleFunc("/rail", c.handleRail)
}

// HandleDebug registers an extra GET endpoint under /api. Used for
// read-only debug views; register before Start.
func (c *WebsocketChannel) HandleDebug(path string, h http.HandlerFunc) {
	c.router.PathPrefix("/api").Subrouter().HandleFunc(path, h).Methods("GET")
}

// Start serves the transport on addr, blocking.
func (c *WebsocketChannel) Start(addr string) error {
	c.log.Info().Str("addr", addr).Msg("RAIL channel listening")
	return http.ListenAndServe(addr, c.router)
}

func (c *WebsocketChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"connected": connected,
	})
}

func (c *WebsocketChannel) handleRail(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// First message must be the hello carrying the subscriber's locale
	// and capabilities.
	var env envelope
	if err := conn.ReadJSON(&env); err != nil || env.Type != "hello" {
		c.log.Warn().Err(err).Msg("Subscriber did not send hello")
		return
	}
	var hello helloPayload
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		c.log.Warn().Err(err).Msg("Malformed hello payload")
		return
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		c.log.Warn().Msg("Rejecting second subscriber")
		return
	}
	c.conn = conn
	c.localMove = hello.LocalMove
	c.primaryOutput = hello.PrimaryOutput
	c.mu.Unlock()

	c.log.Info().Str("locale", hello.Locale).Msg("Remote subscriber connected")
	if c.feed != nil {
		c.feed.FeedStarted(hello.Locale)
	}

	c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	c.log.Info().Msg("Remote subscriber disconnected")
	if c.feed != nil {
		c.feed.FeedStopped()
	}
}

func (c *WebsocketChannel) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Type {
		case "windowCommand":
			var cmd WindowCommand
			if err := json.Unmarshal(env.Payload, &cmd); err != nil {
				c.log.Debug().Err(err).Msg("Malformed window command")
				continue
			}
			if c.handler != nil {
				c.handler.HandleWindowCommand(cmd)
			}
		default:
			c.log.Debug().Str("type", env.Type).Msg("Ignoring unknown message")
		}
	}
}

// send marshals and writes one envelope to the subscriber.
func (c *WebsocketChannel) send(msgType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(envelope{Type: msgType, Payload: data})
}

// NotifyAppList sends one app-list frame.
func (c *WebsocketChannel) NotifyAppList(frame *AppListFrame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	payload := appListPayload{AppListFrame: *frame}
	if frame.AppIcon != nil {
		payload.Icon = &iconPayload{
			Width:  frame.AppIcon.Width,
			Height: frame.AppIcon.Height,
			Pix:    frame.AppIcon.Pix,
		}
	}
	return c.send("appList", payload)
}

// SetWindowIcon sends a window's taskbar icon.
func (c *WebsocketChannel) SetWindowIcon(id WindowID, img *icon.Image) error {
	payload := iconPayload{Window: id}
	if img != nil {
		payload.Width = img.Width
		payload.Height = img.Height
		payload.Pix = img.Pix
	}
	return c.send("windowIcon", payload)
}

// NotifyWindowProxySurface marks a surface as the focus proxy.
func (c *WebsocketChannel) NotifyWindowProxySurface(id WindowID) error {
	return c.send("proxySurface", map[string]WindowID{"window": id})
}

// StartWindowMove hands a move grab over to the remote side.
func (c *WebsocketChannel) StartWindowMove(id WindowID, x, y int) error {
	return c.send("startWindowMove", windowMovePayload{Window: id, X: x, Y: y})
}

// EndWindowMove finishes a remote-side move.
func (c *WebsocketChannel) EndWindowMove(id WindowID) error {
	return c.send("endWindowMove", map[string]WindowID{"window": id})
}

// SendWindowMinMaxInfo advertises a window's size limits.
func (c *WebsocketChannel) SendWindowMinMaxInfo(id WindowID, info MinMaxInfo) error {
	return c.send("minMaxInfo", minMaxPayload{Window: id, MinMaxInfo: info})
}

// NotifyWindowZOrderChange reports the new top-down window order.
func (c *WebsocketChannel) NotifyWindowZOrderChange(ids []WindowID) error {
	return c.send("zorder", zorderPayload{Windows: ids})
}

// PrimaryOutput names the remote side's primary output.
func (c *WebsocketChannel) PrimaryOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primaryOutput
}

// SupportsLocalMove reports whether move grabs are handed to the remote
// side. Requires both shell configuration and subscriber capability.
func (c *WebsocketChannel) SupportsLocalMove() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowLocalMove && c.localMove
}
