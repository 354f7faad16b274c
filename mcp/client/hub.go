package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownServer is returned by Hub.Get for unregistered names.
var ErrUnknownServer = errors.New("unknown MCP server")

// Hub keeps connected clients by server name.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: map[string]*Client{}}
}

// Add connects client when needed and registers it under name, replacing
// (and disconnecting) a previous client.
func (h *Hub) Add(ctx context.Context, name string, client *Client) error {
	if !client.Connected() {
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("server %s: %w", name, err)
		}
	}
	h.mu.Lock()
	previous := h.clients[name]
	h.clients[name] = client
	h.mu.Unlock()
	if previous != nil && previous != client {
		return previous.Disconnect(ctx)
	}
	return nil
}

func (h *Hub) Get(name string) (*Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	return client, nil
}

// Remove disconnects and forgets the client registered under name.
func (h *Hub) Remove(ctx context.Context, name string) error {
	h.mu.Lock()
	client, ok := h.clients[name]
	delete(h.clients, name)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Disconnect(ctx)
}

// Names returns the registered server names, sorted.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ret := make([]string, 0, len(h.clients))
	for name := range h.clients {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Close disconnects every client.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*Client{}
	h.mu.Unlock()
	var errs []error
	for _, client := range clients {
		if err := client.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
