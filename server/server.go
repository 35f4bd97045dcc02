// Package server exposes the pipeline outputs over HTTP: an annotated MJPEG
// stream of the camera preview, JSON snapshots of the latest keypoints,
// feedback and diagnostics, and a websocket feed pushing every update.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-postura/capture"
	"github.com/swdee/go-postura/pipeline"
	"github.com/swdee/go-postura/pose"
	"github.com/swdee/go-postura/posture"
	"github.com/swdee/go-postura/render"
	"gocv.io/x/gocv"
)

// Config sets the HTTP listener
type Config struct {
	// Addr is the address:port to listen on
	Addr string `yaml:"addr" validate:"required"`
	// JPEGQuality of the MJPEG stream frames
	JPEGQuality int `yaml:"jpeg_quality" validate:"min=1,max=100"`
	// Debug adds the debug panel to the stream
	Debug bool `yaml:"debug"`
}

// Sources are the observable values served
type Sources struct {
	Keypoints *pipeline.State[[]pose.Keypoint]
	Feedback  *pipeline.State[posture.Feedback]
	// Preview is optional, without it /stream is unavailable
	Preview *pipeline.State[capture.Still]
	Stats   func() pipeline.Snapshot
}

// Update is the websocket message sent whenever the keypoints or feedback
// change
type Update struct {
	Keypoints []pose.Keypoint   `json:"keypoints"`
	Feedback  *posture.Feedback `json:"feedback,omitempty"`
}

// Server is the HTTP presentation of the pipeline
type Server struct {
	cfg      Config
	src      Sources
	overlay  *render.Overlay
	log      logrus.FieldLogger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New creates a Server and registers its routes
func New(cfg Config, src Sources, overlay *render.Overlay, log logrus.FieldLogger) *Server {

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		src:     src,
		overlay: overlay,
		log:     log.WithField("component", "server"),
		engine:  gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery(), s.logRequests())

	s.engine.GET("/stream", s.handleStream)
	s.engine.GET("/ws", s.handleWebsocket)

	api := s.engine.Group("/api")
	api.GET("/keypoints", s.handleKeypoints)
	api.GET("/feedback", s.handleFeedback)
	api.GET("/stats", s.handleStats)

	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address and serves until the context is
// cancelled
func (s *Server) Run(ctx context.Context) error {

	ln, err := net.Listen("tcp", s.cfg.Addr)

	if err != nil {
		return fmt.Errorf("error listening on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled then shuts
// down gracefully.  Request contexts derive from ctx so long lived stream and
// websocket handlers end when it is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.WithField("addr", ln.Addr().String()).
			Infof("Open browser and view video at http://%s/stream", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		if serr := <-errCh; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return serr
		}

		if err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}

		return nil
	}
}

// logRequests logs each request at debug level
func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

// latest returns the current keypoints and feedback
func (s *Server) latest() Update {

	kps, _ := s.src.Keypoints.Get()

	if kps == nil {
		kps = []pose.Keypoint{}
	}

	u := Update{Keypoints: kps}

	if fb, ok := s.src.Feedback.Get(); ok {
		u.Feedback = &fb
	}

	return u
}

func (s *Server) handleKeypoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keypoints": s.latest().Keypoints})
}

func (s *Server) handleFeedback(c *gin.Context) {

	fb, ok := s.src.Feedback.Get()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame processed yet"})
		return
	}

	c.JSON(http.StatusOK, fb)
}

func (s *Server) handleStats(c *gin.Context) {

	if s.src.Stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stats unavailable"})
		return
	}

	c.JSON(http.StatusOK, s.src.Stats())
}

// handleStream writes the annotated camera preview as a multipart MJPEG
// stream, one part per captured image
func (s *Server) handleStream(c *gin.Context) {

	if s.src.Preview == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no camera preview"})
		return
	}

	log := s.log.WithField("client", c.ClientIP())
	log.Info("New stream client connection established")

	stills, cancel := s.src.Preview.Subscribe()
	defer cancel()

	w := c.Writer
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-c.Request.Context().Done():
			log.Info("Stream client disconnected")
			return

		case still, ok := <-stills:
			if !ok {
				return
			}

			jpg, err := s.annotate(still)

			if err != nil {
				log.WithError(err).Warn("Error annotating preview")
				continue
			}

			// write the image to the response writer
			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(jpg)
			w.Write([]byte("\r\n"))
			w.Flush()
		}
	}
}

// annotate draws the latest results over the preview image and encodes it
// as JPEG
func (s *Server) annotate(still capture.Still) ([]byte, error) {

	img, err := still.Mat()

	if err != nil {
		return nil, err
	}

	defer img.Close()

	if s.overlay != nil {
		u := s.latest()

		if err := s.overlay.Draw(&img, u.Keypoints, u.Feedback); err != nil {
			return nil, err
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
		[]int{int(gocv.IMWriteJpegQuality), s.cfg.JPEGQuality})

	if err != nil {
		return nil, fmt.Errorf("error encoding JPEG: %w", err)
	}

	defer buf.Close()

	// copy out of the native buffer before it is closed
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())

	return out, nil
}

// handleWebsocket pushes an Update to the client each time the keypoints or
// feedback change
func (s *Server) handleWebsocket(c *gin.Context) {

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)

	if err != nil {
		s.log.WithError(err).Warn("Websocket handshake failed")
		return
	}

	defer conn.Close()

	log := s.log.WithField("client", c.ClientIP())
	log.Info("Websocket client connected")

	kpCh, cancelKp := s.src.Keypoints.Subscribe()
	defer cancelKp()

	fbCh, cancelFb := s.src.Feedback.Subscribe()
	defer cancelFb()

	// the read loop detects the client going away
	closed := make(chan struct{})

	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Info("Websocket client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case <-kpCh:
		case <-fbCh:
		}

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

		if err := conn.WriteJSON(s.latest()); err != nil {
			log.WithError(err).Debug("Websocket write failed")
			return
		}
	}
}
