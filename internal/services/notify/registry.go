package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Message is one notification as handed to the channels
type Message struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Target    string                 `json:"target"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Channel delivers notifications over one medium
type Channel interface {
	Code() string
	Deliver(ctx context.Context, msg Message) error
}

// Registry manages the registered delivery channels
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel
func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := ch.Code()
	if code == "" {
		return fmt.Errorf("channel code cannot be empty")
	}
	if _, exists := r.channels[code]; exists {
		return fmt.Errorf("channel %s is already registered", code)
	}

	r.channels[code] = ch
	return nil
}

// Get returns a channel by its code
func (r *Registry) Get(code string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, exists := r.channels[code]
	if !exists {
		return nil, fmt.Errorf("channel %s not found", code)
	}
	return ch, nil
}

// List returns all registered channels ordered by code
func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

// Has checks if a channel is registered
func (r *Registry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.channels[code]
	return exists
}
