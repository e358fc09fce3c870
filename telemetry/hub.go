package telemetry

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"planararm/control"
	"planararm/kinematics"
	"planararm/logger"
	"planararm/sensing"
	"planararm/streamer"
	"planararm/workspace"
)

const (
	DEFAULT_ADDRESS       = ":1337"
	DEFAULT_MIN_INTERVAL  = 20 * time.Millisecond
	BROADCAST_BUFFER_SIZE = 256
	CLIENT_BUFFER_SIZE    = 64
	WRITE_TIMEOUT         = time.Second
	MJPEG_FRAME_BOUNDARY  = "frameboundary"
	FRAME_PERIOD          = 100 * time.Millisecond
	FRAME_WIDTH           = 480
	FRAME_HEIGHT          = 480
)

type Options struct {
	// ticks closer together than this are not broadcast, skipped ticks always are
	MinInterval time.Duration
	Stats       func() control.Stats
	Sensors     func() [2]sensing.JointStatus
	// nil disables the pose image endpoints
	Workspace *workspace.Map
}

// Hub is a control.Observer publishing ticks to websocket clients and
// serving status and pose snapshots over HTTP.
type Hub struct {
	mu       sync.RWMutex
	opts     Options
	session  string
	last     *control.Tick
	lastSent time.Time
	clients  int
	strmr    *streamer.Streamer[Message]
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewHub(opts Options) *Hub {
	h := &Hub{
		opts:  opts,
		strmr: streamer.NewStreamer[Message](BROADCAST_BUFFER_SIZE),
		now:   time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			CheckOrigin:     checkOrigin,
		},
	}
	h.strmr.Start()
	return h
}

func checkOrigin(r *http.Request) bool {
	return true
}

func (h *Hub) Observe(tick control.Tick) {
	now := h.now()
	h.mu.Lock()
	h.session = tick.Session
	h.last = &tick
	send := tick.Skipped || now.Sub(h.lastSent) >= h.opts.MinInterval
	if send {
		h.lastSent = now
	}
	h.mu.Unlock()
	if send {
		h.strmr.TryBroadcast(&Message{Type: TickMessage, Tick: &tick})
	}
}

func (h *Hub) Status() Status {
	h.mu.RLock()
	status := Status{
		Session: h.session,
		Clients: h.clients,
	}
	if h.last != nil {
		last := *h.last
		status.Last = &last
	}
	h.mu.RUnlock()
	if h.opts.Stats != nil {
		status.Stats = h.opts.Stats()
	}
	if h.opts.Sensors != nil {
		sensors := h.opts.Sensors()
		status.Sensors = &sensors
	}
	status.Dropped = h.strmr.Dropped()
	return status
}

func (h *Hub) lastAngles() kinematics.JointAngles {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return kinematics.JointAngles{}
	}
	if h.last.Sensed != nil {
		return *h.last.Sensed
	}
	return h.last.Angles
}

func (h *Hub) Close() {
	h.strmr.Stop()
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.serveDashboard)
	mux.HandleFunc("/ws", h.serveWSRequest)
	mux.HandleFunc("/status", h.serveStatus)
	if h.opts.Workspace != nil {
		mux.HandleFunc("/pose.jpg", h.servePoseSnapshot)
		mux.HandleFunc("/pose.mjpeg", h.servePoseStream)
	}
	return mux
}

func (h *Hub) ListenAndServe(address string) error {
	logger.Infof("telemetry listening on %s", address)
	return http.ListenAndServe(address, h.Handler())
}

func (h *Hub) serveStatus(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(h.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *Hub) addClient(delta int) {
	h.mu.Lock()
	h.clients += delta
	h.mu.Unlock()
}

func (h *Hub) serveWSRequest(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("Websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	logger.Infof("Websocket connection established with %s", r.RemoteAddr)

	client := h.strmr.NewClient(CLIENT_BUFFER_SIZE)
	defer client.Close()
	h.addClient(1)
	defer h.addClient(-1)

	requests := make(chan MessageType, 1)
	go func() {
		defer close(requests)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := Unmarshal(raw)
			if err != nil {
				logger.Warnf("Websocket message format error: %v", err)
				continue
			}
			select {
			case requests <- msg.Type:
			default:
			}
		}
	}()

	if !h.writeStatus(conn) {
		return
	}
	for {
		select {
		case msg, ok := <-client.C:
			if !ok {
				return
			}
			if !h.write(conn, msg) {
				return
			}
		case req, ok := <-requests:
			if !ok {
				logger.Infof("Websocket connection terminated with %s", r.RemoteAddr)
				return
			}
			if req == StatusMessage && !h.writeStatus(conn) {
				return
			}
		}
	}
}

func (h *Hub) writeStatus(conn *websocket.Conn) bool {
	status := h.Status()
	return h.write(conn, &Message{Type: StatusMessage, Status: &status})
}

func (h *Hub) write(conn *websocket.Conn, msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Websocket encode error: %v", err)
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Warnf("Websocket write error: %v", err)
		return false
	}
	return true
}

func (h *Hub) renderPose(e *workspace.FrameEncoder) ([]byte, error) {
	p, err := h.opts.Workspace.PosePlot(h.lastAngles())
	if err != nil {
		return nil, err
	}
	return e.Encode(p)
}

func (h *Hub) servePoseSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, err := h.renderPose(workspace.NewFrameEncoder(FRAME_WIDTH, FRAME_HEIGHT))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame)
}

func (h *Hub) servePoseStream(rw http.ResponseWriter, req *http.Request) {
	logger.Infof("HTTP Connection established with %s", req.RemoteAddr)
	rw.Header().Add("Content-Type", "multipart/x-mixed-replace; boundary=--"+MJPEG_FRAME_BOUNDARY)
	boundary := "\r\n--" + MJPEG_FRAME_BOUNDARY + "\r\nContent-Type: image/jpeg\r\n\r\n"

	encoder := workspace.NewFrameEncoder(FRAME_WIDTH, FRAME_HEIGHT)
	ticker := time.NewTicker(FRAME_PERIOD)
	defer ticker.Stop()
	for {
		frame, err := h.renderPose(encoder)
		if err != nil {
			logger.Errorf("Cannot render pose for %s: %v", req.RemoteAddr, err)
			break
		}
		if n, err := io.WriteString(rw, boundary); err != nil || n != len(boundary) {
			logger.Infof("Cannot write response to %s: %v", req.RemoteAddr, err)
			break
		}
		if n, err := rw.Write(frame); n != len(frame) || err != nil {
			logger.Infof("Cannot write response to %s: %v", req.RemoteAddr, err)
			break
		}
		if n, err := io.WriteString(rw, "\r\n"); err != nil || n != 2 {
			logger.Infof("Cannot write response to %s: %v", req.RemoteAddr, err)
			break
		}
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-req.Context().Done():
			logger.Infof("HTTP Connection closed with %s", req.RemoteAddr)
			return
		case <-ticker.C:
		}
	}
	logger.Infof("HTTP Connection closed with %s", req.RemoteAddr)
}
