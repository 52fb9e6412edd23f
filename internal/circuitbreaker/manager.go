package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager owns the breakers for every outbound dependency (shipping
// provider, chat transport, mail relay) so they can be inspected together.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	config.Name = name
	breaker := New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    config.MaxFailures,
		"timeout":         config.Timeout.String(),
	}).Info("Circuit breaker created")

	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.breakers[name]
}

// AllMetrics returns one snapshot per breaker, ordered by name.
func (m *Manager) AllMetrics() []Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metrics := make([]Metrics, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		metrics = append(metrics, breaker.Metrics())
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

func (m *Manager) Reset(name string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if breaker, exists := m.breakers[name]; exists {
		breaker.Reset()
		m.logger.WithField("circuit_breaker", name).Info("Circuit breaker reset")
		return true
	}

	return false
}
