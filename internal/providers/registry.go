package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderAlreadyExists = errors.New("provider already exists")
	ErrNoProvidersAvailable  = errors.New("no providers available")
)

// Registry gestisce tutti i provider disponibili
type Registry struct {
	providers map[string]Provider
	metadata  map[string]*ProviderMetadata
	order     []string
	mu        sync.RWMutex
}

// ProviderMetadata contiene metadata su un provider
type ProviderMetadata struct {
	Name              string
	Type              string // "openai", "ollama", ...
	RegisteredAt      time.Time
	LastHealthCheck   time.Time
	HealthCheckStatus HealthStatus
	LastLatency       time.Duration
}

// HealthStatus rappresenta lo stato di salute di un provider
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// NewRegistry crea un nuovo registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		metadata:  make(map[string]*ProviderMetadata),
	}
}

// Register registra un nuovo provider
func (r *Registry) Register(name string, provider Provider, providerType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyExists, name)
	}

	r.providers[name] = provider
	r.order = append(r.order, name)
	r.metadata[name] = &ProviderMetadata{
		Name:              name,
		Type:              providerType,
		RegisteredAt:      time.Now(),
		HealthCheckStatus: HealthStatusUnknown,
	}

	log.Debug().
		Str("provider", name).
		Str("type", providerType).
		Msg("Provider registered")

	return nil
}

// Get restituisce un provider per nome
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

// GetOrFirst restituisce il provider specificato, o il primo disponibile
func (r *Registry) GetOrFirst(name string) (Provider, error) {
	if name != "" {
		if provider, err := r.Get(name); err == nil {
			return provider, nil
		}
	}
	return r.GetFirst()
}

// GetFirst restituisce il primo provider registrato non marcato come unhealthy
func (r *Registry) GetFirst() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.metadata[name].HealthCheckStatus != HealthStatusUnhealthy {
			return r.providers[name], nil
		}
	}

	if len(r.order) > 0 {
		return r.providers[r.order[0]], nil
	}

	return nil, ErrNoProvidersAvailable
}

// List restituisce i nomi dei provider in ordine di registrazione
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// GetMetadata restituisce una copia dei metadata di un provider
func (r *Registry) GetMetadata(name string) (ProviderMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.metadata[name]
	if !exists {
		return ProviderMetadata{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return *meta, nil
}

// HealthCheck esegue health check su tutti i provider
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	results := make(map[string]error)
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for _, name := range names {
		wg.Add(1)
		go func(providerName string) {
			defer wg.Done()

			r.mu.RLock()
			provider := r.providers[providerName]
			r.mu.RUnlock()

			start := time.Now()
			err := provider.HealthCheck(ctx)
			latency := time.Since(start)

			r.mu.Lock()
			meta := r.metadata[providerName]
			meta.LastHealthCheck = time.Now()
			meta.LastLatency = latency
			if err != nil {
				meta.HealthCheckStatus = HealthStatusUnhealthy
			} else {
				meta.HealthCheckStatus = HealthStatusHealthy
			}
			r.mu.Unlock()

			resultsMu.Lock()
			results[providerName] = err
			resultsMu.Unlock()

			if err != nil {
				log.Warn().
					Err(err).
					Str("provider", providerName).
					Msg("Provider health check failed")
			} else {
				log.Debug().
					Str("provider", providerName).
					Dur("latency", latency).
					Msg("Provider health check succeeded")
			}
		}(name)
	}

	wg.Wait()
	return results
}
