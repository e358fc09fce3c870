package streamer

import "sync"

type Client[T any] struct {
	streamer *Streamer[T]
	input    chan<- *T
	C        <-chan *T
}

func (c *Client[T]) Close() {
	for {
		select {
		case _, ok := <-c.C:
			if !ok {
				return
			}
		case c.streamer.remove <- c:
			return
		}
	}
}

// Streamer fans broadcast values out to every client. A client whose buffer
// is full misses that value instead of stalling the others.
type Streamer[T any] struct {
	mu        sync.Mutex
	isRunning bool
	clients   map[*Client[T]]bool
	add       chan *Client[T]
	remove    chan *Client[T]
	broadcast chan *T
	stop      chan bool
	dropped   uint64
}

func NewStreamer[T any](buffSize int) *Streamer[T] {
	return &Streamer[T]{
		clients:   make(map[*Client[T]]bool),
		add:       make(chan *Client[T]),
		remove:    make(chan *Client[T]),
		broadcast: make(chan *T, buffSize),
		stop:      make(chan bool),
	}
}

// NewClient registers a client. The streamer must be running.
func (m *Streamer[T]) NewClient(buffSize int) *Client[T] {
	ch := make(chan *T, buffSize)
	c := &Client[T]{
		streamer: m,
		input:    ch,
		C:        ch,
	}
	c.streamer.add <- c
	return c
}

// Broadcast blocks while the broadcast buffer is full.
func (m *Streamer[T]) Broadcast(data *T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return false
	}
	m.broadcast <- data
	return true
}

// TryBroadcast never blocks; it reports false when the value was dropped.
func (m *Streamer[T]) TryBroadcast(data *T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return false
	}
	select {
	case m.broadcast <- data:
		return true
	default:
		m.dropped++
		return false
	}
}

func (m *Streamer[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *Streamer[T]) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// Start runs the streamer in its own goroutine and returns once it accepts
// broadcasts.
func (m *Streamer[T]) Start() bool {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return false
	}
	m.isRunning = true
	m.mu.Unlock()
	go m.loop()
	return true
}

func (m *Streamer[T]) Run() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()
	m.loop()
}

func (m *Streamer[T]) loop() {
	for {
		select {
		case <-m.stop:
			for client := range m.clients {
				close(client.input)
			}
			clear(m.clients)
			return
		case client := <-m.add:
			m.clients[client] = true
		case client := <-m.remove:
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.input)
			}
		case chunk := <-m.broadcast:
			for client := range m.clients {
				select {
				case client.input <- chunk:
				default:
				}
			}
		}
	}
}

func (m *Streamer[T]) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return false
	}
	m.isRunning = false
	m.stop <- true
	return true
}
