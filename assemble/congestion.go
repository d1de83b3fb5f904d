package assemble

import "sync"

// CongestionController exposes the current inter-invocation delay the
// Transporter should wait between dispatches. The initial
// implementation below simply returns a configured delay unchanged;
// Tick is a hook future adaptive schemes (e.g. backing off under
// observed packet loss) can use without changing the Transporter.
type CongestionController interface {
	CurrentDelayMS() int
	Tick()
}

// FixedCongestionController reads one delay from configuration and
// never varies it. It is the only implementation spec requires; it is
// deliberately not a no-op struct literal so later adaptive variants
// can embed and override it.
type FixedCongestionController struct {
	mu    sync.Mutex
	delay int
	ticks uint64
}

// NewFixedCongestionController returns a controller fixed at delayMS
// milliseconds between dispatches.
func NewFixedCongestionController(delayMS int) *FixedCongestionController {
	return &FixedCongestionController{delay: delayMS}
}

// CurrentDelayMS returns the configured delay, in milliseconds.
func (c *FixedCongestionController) CurrentDelayMS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Tick is invoked once per dispatched RPC by the Transporter.
func (c *FixedCongestionController) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
}

// Ticks returns the number of dispatches observed so far, for tests
// and metrics.
func (c *FixedCongestionController) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}
