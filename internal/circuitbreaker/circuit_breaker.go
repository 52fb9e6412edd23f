package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

type Config struct {
	Name          string
	MaxFailures   int
	Timeout       time.Duration
	MaxRequests   int
	OnStateChange func(name string, from State, to State)
	// IsFailure decides whether a non-nil error from the guarded call counts
	// against the breaker. Defaults to everything except caller cancellation.
	IsFailure func(err error) bool
}

type Metrics struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	Requests        int       `json:"requests"`
	TotalRequests   int64     `json:"total_requests"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalRejected   int64     `json:"total_rejected"`
	TotalIgnored    int64     `json:"total_ignored"`
	StateChanges    int64     `json:"state_changes"`
	MaxFailures     int       `json:"max_failures"`
	TimeoutSeconds  float64   `json:"timeout_seconds"`
	MaxRequests     int       `json:"max_requests"`
	LastFailure     time.Time `json:"last_failure"`
	LastStateChange time.Time `json:"last_state_change"`
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	onStateChange func(name string, from State, to State)
	isFailure     func(err error) bool

	mutex        sync.RWMutex
	state        State
	failures     int
	requests     int
	lastFailTime time.Time

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejected   int64
	totalIgnored    int64
	stateChanges    int64
	lastStateChange time.Time

	logger *logrus.Logger
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func New(config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "unnamed"
		logger.Warn("Circuit breaker created without name, using 'unnamed'")
	}

	if config.MaxFailures <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.MaxFailures,
			"default_value":   5,
		}).Warn("Invalid MaxFailures value, using default")
		config.MaxFailures = 5
	}

	if config.Timeout <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.Timeout,
			"default_value":   "30s",
		}).Warn("Invalid Timeout value, using default")
		config.Timeout = 30 * time.Second
	}

	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}

	if config.MaxFailures > 1000 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.MaxFailures,
			"max_allowed":     1000,
		}).Warn("MaxFailures too high, capping at maximum")
		config.MaxFailures = 1000
	}

	if config.Timeout > 10*time.Minute {
		config.Timeout = 10 * time.Minute
	}

	if config.MaxRequests > 100 {
		config.MaxRequests = 100
	}

	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}

	return &CircuitBreaker{
		name:          config.Name,
		maxFailures:   config.MaxFailures,
		timeout:       config.Timeout,
		maxRequests:   config.MaxRequests,
		onStateChange: config.OnStateChange,
		isFailure:     config.IsFailure,
		state:         StateClosed,
		logger:        logger,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn without a deadline of its own.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteContext runs fn if the breaker admits the call. When ctx ends before
// fn returns, ctx.Err() is returned right away and fn, which shares ctx, is
// left to stop on its own. A missed deadline counts as a failure.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	resultChan := make(chan error, 1)
	go func() {
		resultChan <- fn(ctx)
	}()

	var err error
	select {
	case err = <-resultChan:
	case <-ctx.Done():
		err = ctx.Err()
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch {
	case err == nil:
		cb.onSuccess()
		cb.totalSuccesses++
	case cb.isFailure(err):
		cb.onFailure()
		cb.totalFailures++
	default:
		// Neither outcome: free the half-open trial slot for another caller.
		cb.totalIgnored++
		if cb.state == StateHalfOpen && cb.requests > 0 {
			cb.requests--
		}
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.requests = 0
		} else {
			cb.totalRejected++
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           cb.state.String(),
			}).Debug("Circuit breaker is open, rejecting request")
			return ErrCircuitBreakerOpen
		}
	}

	if cb.state == StateHalfOpen && cb.requests >= cb.maxRequests {
		cb.totalRejected++
		return ErrCircuitBreakerOpen
	}

	cb.totalRequests++
	if cb.state == StateHalfOpen {
		cb.requests++
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = time.Now()

	if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.setState(StateOpen)
		cb.requests = 0
	} else if cb.state == StateHalfOpen {
		cb.setState(StateOpen)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stateChanges++
	cb.lastStateChange = time.Now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from_state":      oldState.String(),
		"to_state":        newState.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.executeStateChangeCallback(cb.name, oldState, newState)
	}
}

func (cb *CircuitBreaker) executeStateChangeCallback(name string, from State, to State) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				cb.logger.WithFields(logrus.Fields{
					"circuit_breaker": name,
					"from_state":      from.String(),
					"to_state":        to.String(),
					"panic":           r,
				}).Error("Circuit breaker state change callback panicked")
			}
			close(done)
		}()

		cb.onStateChange(name, from, to)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": name,
			"from_state":      from.String(),
			"to_state":        to.String(),
		}).Warn("Circuit breaker state change callback timed out")
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return Metrics{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		Requests:        cb.requests,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalRejected:   cb.totalRejected,
		TotalIgnored:    cb.totalIgnored,
		StateChanges:    cb.stateChanges,
		MaxFailures:     cb.maxFailures,
		TimeoutSeconds:  cb.timeout.Seconds(),
		MaxRequests:     cb.maxRequests,
		LastFailure:     cb.lastFailTime,
		LastStateChange: cb.lastStateChange,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.requests = 0
	cb.lastFailTime = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state.String(), cb.failures, cb.maxFailures)
}
