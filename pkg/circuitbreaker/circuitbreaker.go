package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// State 熔断器状态
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

// Config 熔断器配置
type Config struct {
	Name string
	// 连续失败多少次后打开
	FailureThreshold int
	// 半开状态下连续成功多少次后关闭
	SuccessThreshold int
	// 打开状态持续多久后进入半开
	Timeout time.Duration
	// 半开状态下允许同时进行的请求数
	HalfOpenMaxRequests int
	// OnStateChange 在持有锁之外调用
	OnStateChange func(name string, from, to State)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker 保护对外部依赖（对象存储等）的调用
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// Execute 执行 fn，熔断打开时直接返回 ErrCircuitBreakerOpen
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

// ExecuteContext 同 Execute；调用方取消（context.Canceled）不计为依赖失败
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err == nil || errors.Is(err, context.Canceled))
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		cb.setState(StateHalfOpen)
	}
	to := cb.state

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.config.HalfOpenMaxRequests {
			err = ErrCircuitBreakerOpen
		} else {
			cb.inFlight++
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return err
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.setState(StateClosed)
			}
		}
	} else {
		cb.failures++
		switch cb.state {
		case StateHalfOpen:
			cb.setState(StateOpen)
		case StateClosed:
			if cb.failures >= cb.config.FailureThreshold {
				cb.setState(StateOpen)
			}
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// setState 调用方必须持有 mu
func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.successes = 0
	cb.inFlight = 0
	switch s {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// GetState 返回当前状态；打开超时后的首次调用才会切换到半开
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.setState(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}
