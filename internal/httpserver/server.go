package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/rtc"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/session"
)

// CatalogSource provides the pre-session option lists. *eval.Client
// satisfies it.
type CatalogSource interface {
	Options(ctx context.Context) (eval.Catalog, error)
}

// Server bundles the HTTP router and its dependencies.
type Server struct {
	Router http.Handler

	orc     *session.Orchestrator
	catalog CatalogSource
	offers  *rtc.Handler

	mu           sync.Mutex
	loudWatchers map[int]chan float64
	nextID       int
}

// New constructs the HTTP server with routes.
func New(orc *session.Orchestrator, catalog CatalogSource, offers *rtc.Handler) *Server {
	s := &Server{
		orc:          orc,
		catalog:      catalog,
		offers:       offers,
		loudWatchers: make(map[int]chan float64),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/options", s.options)
	e.GET("/session", s.snapshot)
	e.POST("/session/start", s.start)
	e.POST("/session/stop-recording", s.stopRecording)
	e.POST("/session/retry-capture", s.retryCapture)
	e.POST("/session/end", s.end)
	e.POST("/session/reset", s.reset)
	e.GET("/session/events", s.events)
	e.POST("/rtc/offer", s.offer)

	s.Router = e
	go s.fanLoudness()
	return s
}

// options returns the backend's option lists, or the builtin catalog when
// the backend is unreachable. Configuration never blocks on the network.
func (s *Server) options(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	cat, err := s.catalog.Options(ctx)
	if err != nil {
		log.Printf("http: option catalog unavailable, serving builtin: %v", err)
		cat = eval.BuiltinCatalog()
	}
	return c.JSON(http.StatusOK, cat)
}

type startRequest struct {
	Topic           string `json:"topic"`
	CompanyStyle    string `json:"company_style"`
	Difficulty      string `json:"difficulty"`
	Mode            string `json:"mode"`
	DurationMinutes int    `json:"duration_minutes"`
	EnableTTS       bool   `json:"enable_tts"`
	ResumeText      string `json:"resume_text"`
	JobDescription  string `json:"job_description"`
}

func (s *Server) start(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 30
	}
	err := s.orc.Start(session.Config{
		Topic:          req.Topic,
		CompanyStyle:   req.CompanyStyle,
		Difficulty:     req.Difficulty,
		Mode:           req.Mode,
		Duration:       time.Duration(req.DurationMinutes) * time.Minute,
		EnableTTS:      req.EnableTTS,
		ResumeText:     req.ResumeText,
		JobDescription: req.JobDescription,
	})
	if err != nil {
		return c.JSON(http.StatusConflict, errBody(err))
	}
	return c.JSON(http.StatusAccepted, s.orc.Snapshot())
}

func (s *Server) stopRecording(c echo.Context) error {
	s.orc.StopRecording()
	return c.JSON(http.StatusAccepted, s.orc.Snapshot())
}

func (s *Server) retryCapture(c echo.Context) error {
	s.orc.RetryCapture()
	return c.JSON(http.StatusAccepted, s.orc.Snapshot())
}

func (s *Server) end(c echo.Context) error {
	if err := s.orc.End(); err != nil {
		return c.JSON(http.StatusConflict, errBody(err))
	}
	return c.JSON(http.StatusAccepted, s.orc.Snapshot())
}

func (s *Server) reset(c echo.Context) error {
	if err := s.orc.Reset(); err != nil {
		return c.JSON(http.StatusConflict, errBody(err))
	}
	return c.JSON(http.StatusOK, s.orc.Snapshot())
}

func (s *Server) snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orc.Snapshot())
}

func (s *Server) offer(c echo.Context) error {
	var offer rtc.SessionDescription
	if err := c.Bind(&offer); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	answer, err := s.offers.HandleOffer(c.Request().Context(), offer)
	if err != nil {
		log.Printf("http: webrtc handle offer failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, answer)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// event is one frame on the events socket: a state snapshot or a loudness
// sample for the input level meter.
type event struct {
	Type  string            `json:"type"`
	State *session.Snapshot `json:"state,omitempty"`
	Level *float64          `json:"level,omitempty"`
}

// events upgrades to WebSocket and streams state snapshots and microphone
// loudness until the client disconnects.
func (s *Server) events(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("http: ws upgrade error: %v", err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	snaps, unsub := s.orc.Subscribe()
	defer unsub()
	loud, unsubLoud := s.subscribeLoudness()
	defer unsubLoud()

	// Reader loop only detects disconnect; clients send nothing meaningful.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	snap := s.orc.Snapshot()
	if werr := conn.WriteJSON(event{Type: "state", State: &snap}); werr != nil {
		return nil
	}
	for {
		select {
		case <-done:
			return nil
		case st := <-snaps:
			if werr := conn.WriteJSON(event{Type: "state", State: &st}); werr != nil {
				return nil
			}
		case lv := <-loud:
			if werr := conn.WriteJSON(event{Type: "loudness", Level: &lv}); werr != nil {
				return nil
			}
		}
	}
}

// fanLoudness forwards the orchestrator's single loudness stream to every
// connected events socket, dropping samples for slow clients.
func (s *Server) fanLoudness() {
	for v := range s.orc.Loudness() {
		s.mu.Lock()
		for _, ch := range s.loudWatchers {
			select {
			case ch <- v:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) subscribeLoudness() (<-chan float64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan float64, 16)
	s.loudWatchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.loudWatchers, id)
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
