package landmark

import (
	"MaskFit/internal/entity"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// RemoteSource forwards frames to an external face mesh service over a
// websocket and reads back its landmarks.
type RemoteSource struct {
	url          string
	opts         Options
	conn         *websocket.Conn
	mu           sync.Mutex
	log          *logrus.Logger
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	jpegQuality  int
}

type remoteConfig struct {
	Type    string  `json:"type"`
	Options Options `json:"options"`
}

type remoteResponse struct {
	Faces []entity.LandmarkSet `json:"faces"`
	Error string               `json:"error,omitempty"`
}

func NewRemoteSource(url string, opts Options, log *logrus.Logger) *RemoteSource {
	c := &RemoteSource{
		url:          url,
		opts:         opts,
		log:          log,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
		jpegQuality:  80,
	}

	go c.connectInBackground()

	return c
}

func (c *RemoteSource) connectInBackground() {
	if c.IsConnected() {
		return
	}
	if err := c.Reconnect(); err != nil {
		c.log.Warnf("Initial connection to landmark service failed: %v. Will retry on demand.", err)
		return
	}
	c.log.Info("Successfully connected to landmark service")
}

func (c *RemoteSource) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *RemoteSource) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.url == "" {
		return errors.New("landmark service URL not configured")
	}

	c.log.Debugf("Connecting to landmark service at %s", c.url)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout)); err != nil {
			c.log.Warnf("Error sending pong: %v", err)
		}
		return nil
	})

	cfg, err := jsoniter.Marshal(remoteConfig{Type: "config", Options: c.opts})
	if err != nil {
		conn.Close()
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, cfg); err != nil {
		conn.Close()
		return fmt.Errorf("error sending detector options: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *RemoteSource) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping failed for landmark service, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *RemoteSource) Detect(ctx context.Context, img image.Image) (entity.Detection, error) {
	result := entity.Detection{Viewport: viewportOf(img)}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return result, fmt.Errorf("encode frame: %w", err)
	}

	if !c.IsConnected() {
		if err := c.Reconnect(); err != nil {
			return result, fmt.Errorf("cannot connect to landmark service: %w", err)
		}
	}

	readDeadline := time.Now().Add(c.readTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(readDeadline) {
		readDeadline = dl
	}

	// one request in flight per connection
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	if conn == nil {
		return result, errors.New("not connected to landmark service")
	}

	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		c.dropLocked(conn)
		return result, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked(conn)
		return result, fmt.Errorf("error reading landmarks: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var resp remoteResponse
	if err := jsoniter.Unmarshal(message, &resp); err != nil {
		return result, fmt.Errorf("error unmarshaling landmark response: %w", err)
	}
	if resp.Error != "" {
		return result, fmt.Errorf("landmark service: %s", resp.Error)
	}

	limit := c.opts.MaxFaces
	if limit <= 0 {
		limit = 1
	}
	if len(resp.Faces) > limit {
		resp.Faces = resp.Faces[:limit]
	}
	result.Faces = resp.Faces

	c.log.Debugf("Landmark service returned %d face(s) for %dx%d frame",
		len(result.Faces), result.Viewport.Width, result.Viewport.Height)

	return result, nil
}

func (c *RemoteSource) dropLocked(conn *websocket.Conn) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

func (c *RemoteSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
