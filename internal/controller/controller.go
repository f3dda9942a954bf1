// Package controller orchestrates the tunnel: it owns the single profile of
// this application, drives connect, disconnect and in-place reconfiguration,
// and turns raw session states into a verified connected signal.
//
// All state lives on one actor goroutine. Public methods enqueue a job and
// return immediately; results are delivered through callbacks that run on the
// actor. The current profile is additionally published as an immutable
// snapshot so that read-only queries never wait for the actor.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/user/vpn-tunnel/internal/alwayson"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/monitor"
	"github.com/user/vpn-tunnel/internal/profile"
	"github.com/user/vpn-tunnel/internal/session"
	"github.com/user/vpn-tunnel/internal/tunnelcfg"
)

var (
	ErrNotInitialized = errors.New("controller is not initialized")
	ErrClosed         = errors.New("controller is closed")
)

// ConnectionState is the externally visible result of Initialize.
type ConnectionState int

const (
	StateError ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// Phase is the controller lifecycle position.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseDisconnected
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Reason selects how Connect reaches the engine.
type Reason int

const (
	// ReasonNormal restarts the engine with a freshly persisted configuration.
	ReasonNormal Reason = 0
	// ReasonSwitching reconfigures an already running engine in place.
	ReasonSwitching Reason = 1
)

const jobQueueSize = 64

// Options configure a Controller.
type Options struct {
	Store   profile.Store
	Vault   profile.Vault
	Session session.Session
	// Policy defaults to alwayson.New(Store).
	Policy      *alwayson.Policy
	SettleDelay time.Duration
	// TunnelName is the localized profile and configuration name.
	TunnelName string
	// OnStateChange receives the verified connected signal. It is called from
	// the status monitor, in order, and must not block.
	OnStateChange func(connected bool)
}

// InitRequest carries the local identity of the tunnel.
type InitRequest struct {
	OwnerID     string
	PrivateKey  wgtypes.Key
	LocalAddrV4 string
	LocalAddrV6 string
}

// ConnectRequest describes the server to connect to.
type ConnectRequest struct {
	DNS              string                   `json:"dns"`
	SecondaryGateway string                   `json:"secondary_gateway,omitempty"`
	ServerPublicKey  string                   `json:"server_public_key"`
	ServerHost       string                   `json:"server_host"`
	ServerPort       int                      `json:"server_port"`
	AllowedRanges    []tunnelcfg.AddressRange `json:"allowed_ranges"`
	Reason           Reason                   `json:"reason"`
	EnableAlwaysOn   bool                     `json:"enable_always_on"`
}

// Status is the result of CheckStatus. All fields are empty when the tunnel
// has no usable configuration or session.
type Status struct {
	Gateway      string `json:"gateway"`
	LocalAddress string `json:"local_address"`
	Raw          string `json:"raw"`
}

// IsEmpty reports whether s is the empty status.
func (s Status) IsEmpty() bool {
	return s == Status{}
}

// Controller is the tunnel orchestrator.
type Controller struct {
	store         profile.Store
	vault         profile.Vault
	session       session.Session
	policy        *alwayson.Policy
	tunnelName    string
	onStateChange func(bool)
	monitor       *monitor.Monitor

	ctx       context.Context
	cancel    context.CancelFunc
	jobs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	current        atomic.Pointer[profile.Profile]
	phase          atomic.Int32
	connectedSince atomic.Pointer[time.Time]

	// Owned by the actor goroutine.
	initialized bool
	ownerID     string
	privateKey  wgtypes.Key
	localV4     string
	localV6     string
	unsubscribe func()
}

// New creates a controller and starts its actor goroutine. Close releases it.
func New(opts Options) *Controller {
	if opts.Policy == nil {
		opts.Policy = alwayson.New(opts.Store)
	}
	if opts.TunnelName == "" {
		opts.TunnelName = tunnelcfg.DefaultName
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:         opts.Store,
		vault:         opts.Vault,
		session:       opts.Session,
		policy:        opts.Policy,
		tunnelName:    opts.TunnelName,
		onStateChange: opts.OnStateChange,
		ctx:           ctx,
		cancel:        cancel,
		jobs:          make(chan func(), jobQueueSize),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	// The actor goroutine keeps the controller reachable until Close ends it.
	// Past that point the monitor and its timers hold only this weak handle,
	// so a late firing becomes a no-op and the controller can be collected.
	ref := weak.Make(c)
	c.monitor = monitor.New(monitor.Options{
		SettleDelay: opts.SettleDelay,
		Target:      weakTarget{ref: ref},
		OnChange: func(connected bool) {
			if c := ref.Value(); c != nil {
				c.verified(connected)
			}
		},
	})

	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case job := <-c.jobs:
			c.runJob(job)
		case <-c.quit:
			// Jobs accepted before Close still complete; the cancelled
			// context makes their blocking calls fail fast.
			for {
				select {
				case job := <-c.jobs:
					c.runJob(job)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) runJob(job func()) {
	defer logger.Recover("controller job")
	job()
}

// submit enqueues job on the actor. It reports false once the controller is
// closed, in which case job never runs.
func (c *Controller) submit(job func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.jobs <- job:
		return true
	case <-c.quit:
		return false
	}
}

// Close stops the actor and any pending verification loop. It is safe to
// call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.monitor.Close()
		c.cancel()
		close(c.quit)
		<-c.done
		if c.unsubscribe != nil {
			c.unsubscribe()
			c.unsubscribe = nil
		}
		logger.Info("Tunnel controller closed")
	})
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// ConnectedSince returns when the tunnel was verified connected, or the zero
// time.
func (c *Controller) ConnectedSince() time.Time {
	if t := c.connectedSince.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Profile returns the published profile snapshot, or nil before
// initialization. The result must not be modified.
func (c *Controller) Profile() *profile.Profile {
	return c.current.Load()
}

func (c *Controller) setPhase(p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old != p {
		logger.Debug("Controller phase %s -> %s", old, p)
	}
}

func (c *Controller) setConnectedSince(t time.Time) {
	if t.IsZero() {
		c.connectedSince.Store(nil)
		return
	}
	c.connectedSince.Store(&t)
}

func (c *Controller) publish(p *profile.Profile) {
	if p != nil {
		c.current.Store(p)
	}
}

// verified is called by the monitor with its lock held.
func (c *Controller) verified(connected bool) {
	if connected {
		since := c.session.ConnectedDate()
		if since.IsZero() {
			since = time.Now()
		}
		c.setConnectedSince(since)
		c.setPhase(PhaseConnected)
	} else {
		c.setConnectedSince(time.Time{})
		c.setPhase(PhaseDisconnected)
	}

	if c.onStateChange != nil {
		c.onStateChange(connected)
	}
}

// Initialize loads the owned profile, creating an empty one if none exists,
// and reports whether the tunnel is already up.
func (c *Controller) Initialize(req InitRequest, done func(ConnectionState, time.Time)) {
	if done == nil {
		done = func(ConnectionState, time.Time) {}
	}
	if !c.submit(func() { c.initialize(req, done) }) {
		done(StateError, time.Time{})
	}
}

func (c *Controller) initialize(req InitRequest, done func(ConnectionState, time.Time)) {
	logger.Info("Initializing tunnel controller for %s", req.OwnerID)
	c.setPhase(PhaseLoading)

	profiles, err := c.store.LoadAll(c.ctx)
	if err != nil {
		logger.Error("Failed to load profiles: %v", err)
		c.setPhase(PhaseError)
		done(StateError, time.Time{})
		return
	}
	logger.Info("Loaded %d profiles", len(profiles))

	c.ownerID = req.OwnerID
	c.privateKey = req.PrivateKey
	c.localV4 = req.LocalAddrV4
	c.localV6 = req.LocalAddrV6
	c.initialized = true
	c.subscribe()

	owned := profile.SelectOwned(profiles, req.OwnerID)
	if owned == nil {
		logger.Info("Creating the tunnel profile")
		c.publish(c.store.Create())
		c.setConnectedSince(time.Time{})
		c.setPhase(PhaseDisconnected)
		done(StateDisconnected, time.Time{})
		return
	}

	logger.Info("Tunnel profile already exists")
	c.publish(owned)

	if c.session.State() == session.StateConnected {
		since := c.session.ConnectedDate()
		c.setConnectedSince(since)
		c.setPhase(PhaseConnected)
		done(StateConnected, since)
		return
	}

	c.setConnectedSince(time.Time{})
	c.setPhase(PhaseDisconnected)
	done(StateDisconnected, time.Time{})
}

func (c *Controller) subscribe() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	events, cancel := c.session.Subscribe()
	c.unsubscribe = cancel
	mon, ctx := c.monitor, c.ctx
	logger.SafeGo("status monitor", func() {
		mon.Run(ctx, events)
	})
}

// weakTarget lets the monitor poll the controller without keeping it alive.
// A collected controller answers with StateInvalid, which ends the loop.
type weakTarget struct {
	ref weak.Pointer[Controller]
}

func (w weakTarget) Poll(done func(session.State, string)) {
	c := w.ref.Value()
	if c == nil {
		done(session.StateInvalid, "")
		return
	}
	c.CheckStatus(func(st Status) {
		done(c.session.State(), st.Raw)
	})
}
