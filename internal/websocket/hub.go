// Storyrank - Sequence-Aware Story Recommendation Service
// Copyright 2026 N. Vallon (nvallon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nvallon/storyrank

// Package websocket pushes engine change notifications to connected clients.
//
// Clients subscribe once and receive a message whenever the catalog changes,
// a user's profile absorbs a new event, or a snapshot is restored. The
// payload carries enough for a client to decide whether to re-fetch its
// recommendation list.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/nvallon/storyrank/internal/logging"
	"github.com/nvallon/storyrank/internal/metrics"
)

// Message types pushed to clients.
const (
	MessageTypeRecommendationsRefreshed = "recommendations_refreshed"
	MessageTypeCatalogUpdated           = "catalog_updated"
	MessageTypeSnapshotRestored         = "snapshot_restored"
	MessageTypePing                     = "ping"
	MessageTypePong                     = "pong"
)

// Message is one websocket frame, JSON-encoded on the wire.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// RefreshedPayload tells clients whose recommendations went stale.
type RefreshedPayload struct {
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
}

// Hub tracks connected clients and fans broadcast messages out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an empty hub. Run or RunWithContext must be started before
// clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Broadcast queues a message for every connected client. Drops the message
// when the hub's queue is full rather than blocking the caller.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("type", msg.Type).Msg("websocket broadcast queue full, message dropped")
	}
}

// NotifyRecommendationsRefreshed tells clients that userID's profile changed.
func (h *Hub) NotifyRecommendationsRefreshed(userID, eventType string) {
	h.Broadcast(Message{
		Type: MessageTypeRecommendationsRefreshed,
		Data: RefreshedPayload{UserID: userID, EventType: eventType},
	})
}

// NotifyCatalogUpdated tells clients the story catalog changed.
func (h *Hub) NotifyCatalogUpdated(storyID string) {
	h.Broadcast(Message{Type: MessageTypeCatalogUpdated, Data: map[string]string{"story_id": storyID}})
}

// NotifySnapshotRestored tells clients all cached state is stale.
func (h *Hub) NotifySnapshotRestored(version int) {
	h.Broadcast(Message{Type: MessageTypeSnapshotRestored, Data: map[string]int{"version": version}})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunWithContext pumps the hub until the context is canceled, then closes
// every client and returns the context error. Designed to run under a
// supervisor.
//
// Lifecycle events are drained before broadcasts so the client set is
// settled when a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// fanOut delivers a message to all clients in stable ID order. Clients whose
// send queue is full are disconnected rather than allowed to stall the hub.
func (h *Hub) fanOut(msg Message) {
	h.mu.RLock()
	ordered := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		ordered = append(ordered, client)
	}
	h.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	for _, client := range ordered {
		select {
		case client.send <- msg:
		default:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WebsocketClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}
