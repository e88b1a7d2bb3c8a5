package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/campus-canteen/api/internal/logger"
	"github.com/campus-canteen/api/internal/notify"
	"go.uber.org/zap"
)

const broadcastQueueSize = 256

// channelEvent routes an event to one room
type channelEvent struct {
	channel string
	event   notify.Event
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdLeave
	cmdReply
)

// command is a client request that mutates hub state or writes to the client.
// All writes to Client.send happen on the hub goroutine.
type command struct {
	kind    commandKind
	client  *Client
	channel string
	reply   []byte
}

// Hub maintains the set of active clients and the rooms they joined
type Hub struct {
	// Clients by channel name
	rooms map[string]map[*Client]bool

	// Every registered client
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	commands   chan command

	// Outbound events to fan out
	broadcast chan *channelEvent

	// Closed when Run returns
	done chan struct{}

	// Guards rooms for readers outside the hub loop
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan command, 64),
		broadcast:  make(chan *channelEvent, broadcastQueueSize),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.dropLocked(client)
			}
			h.mu.Unlock()

		case cmd := <-h.commands:
			h.mu.Lock()
			h.handleLocked(cmd)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.event)
			if err != nil {
				logger.Log.Error("encode ws event", zap.String("channel", ev.channel), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[ev.channel] {
				h.sendLocked(client, message)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) handleLocked(cmd command) {
	client := cmd.client
	if !h.clients[client] {
		return
	}

	switch cmd.kind {
	case cmdJoin:
		if h.rooms[cmd.channel] == nil {
			h.rooms[cmd.channel] = make(map[*Client]bool)
		}
		h.rooms[cmd.channel][client] = true
		client.rooms[cmd.channel] = true
		h.sendLocked(client, encodeAck(ackJoined, cmd.channel, ""))

	case cmdLeave:
		h.leaveLocked(client, cmd.channel)
		h.sendLocked(client, encodeAck(ackLeft, cmd.channel, ""))

	case cmdReply:
		h.sendLocked(client, cmd.reply)
	}
}

// sendLocked queues message for client. A slow client whose buffer is full
// is dropped from every room and disconnected.
func (h *Hub) sendLocked(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		logger.Log.Warn("ws client too slow, disconnecting")
		h.dropLocked(client)
	}
}

func (h *Hub) leaveLocked(client *Client, channel string) {
	delete(client.rooms, channel)
	if clients, ok := h.rooms[channel]; ok {
		delete(clients, client)
		// Clean up empty rooms
		if len(clients) == 0 {
			delete(h.rooms, channel)
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	for channel := range client.rooms {
		h.leaveLocked(client, channel)
	}
	delete(h.clients, client)
	close(client.send)
}

// Publish queues event for every client in channel. It never blocks: when
// the queue is full the event is dropped.
func (h *Hub) Publish(channel string, event notify.Event) {
	select {
	case h.broadcast <- &channelEvent{channel: channel, event: event}:
	default:
		logger.Log.Warn("ws broadcast queue full, dropping event",
			zap.String("channel", channel),
			zap.String("type", event.Type),
		)
	}
}

// RoomSize returns the number of clients currently in channel.
func (h *Hub) RoomSize(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}

func (h *Hub) submit(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client, channel string) {
	h.submit(command{kind: cmdJoin, client: c, channel: channel})
}

func (h *Hub) leave(c *Client, channel string) {
	h.submit(command{kind: cmdLeave, client: c, channel: channel})
}

func (h *Hub) reply(c *Client, msg []byte) {
	h.submit(command{kind: cmdReply, client: c, reply: msg})
}

func (h *Hub) addClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
