package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itohio/pipshield/pkg/frame"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 64
	writeWait         = time.Second
)

// ErrClosed is returned when publishing to a closed Hub.
var ErrClosed = errors.New("hub closed")

// Ensure Hub implements Sink.
var _ Sink = (*Hub)(nil)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
}

// Hub streams frames to every connected websocket client. Clients that
// cannot keep up lose messages; they are never waited for.
type Hub struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	clients map[*client]bool
	count   chan chan int
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	server   *http.Server
	listener net.Listener
}

// NewHub creates a Hub and starts its dispatch loop. Serve it with any
// http.Server, or use ListenHub.
func NewHub() *Hub {
	h := &Hub{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		count:   make(chan chan int),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

// ListenHub creates a Hub serving websocket clients on addr.
func ListenHub(addr string) (*Hub, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	h := NewHub()
	h.listener = l
	h.server = &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Websocket relay stopped: %v", err)
		}
	}()
	return h, nil
}

// Addr returns the listening address, or "" if the hub has no listener.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case reply := <-h.count:
			reply <- len(h.clients)
		case c := <-h.join:
			h.clients[c] = true
			log.Printf("Websocket client joined (%d)", len(h.clients))
		case c := <-h.leave:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				log.Printf("Websocket client left (%d)", len(h.clients))
			}
		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			h.clients = nil
			return
		}
	}
}

// Publish implements Sink. It never blocks on slow clients.
func (h *Hub) Publish(f frame.Frame) error {
	msg, err := Encode(f)
	if err != nil {
		return fmt.Errorf("failed to encode %v frame: %w", f.Kind, err)
	}
	select {
	case <-h.stopped:
		return ErrClosed
	default:
	}
	select {
	case h.forward <- msg:
		return nil
	default:
		return fmt.Errorf("hub busy, frame dropped")
	}
}

// ServeHTTP upgrades the request to a websocket and streams frames to it
// until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case h.join <- c:
	case <-h.stopped:
		socket.Close()
		return
	}

	go c.write()
	c.read()

	select {
	case h.leave <- c:
	case <-h.stopped:
	}
}

// Close disconnects all clients and stops the listener, if any.
func (h *Hub) Close() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		<-h.stopped
		if h.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err = h.server.Shutdown(ctx)
		}
	})
	return err
}

// read discards client messages until the connection fails.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
