package detector

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/land-detector/internal/hysteresis"
	"github.com/sweeney/land-detector/internal/params"
	"github.com/sweeney/land-detector/internal/telemetry"
)

// Config controls engine behaviour that is not a detector parameter.
type Config struct {
	Freshness telemetry.Freshness
	// Minimum time between parameter snapshot reloads
	ParamInterval time.Duration
	// Maximum time between publications of an unchanged output
	PublishInterval time.Duration
	Gate            LandedGate
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Freshness:       telemetry.DefaultFreshness(),
		ParamInterval:   time.Second,
		PublishInterval: time.Second,
		Gate:            GateDebounced,
	}
}

// Engine runs the land detection state machine.
// Not safe for concurrent use: Update is called from a single tick loop.
type Engine struct {
	cfg       Config
	rules     RuleSet
	inputs    InputSource
	params    ParameterSource
	publisher Publisher
	logger    *slog.Logger

	current      params.Parameters
	paramsLoaded bool
	lastParamsUs uint64

	snapshot telemetry.Snapshot

	groundContact hysteresis.Hysteresis
	maybeLanded   hysteresis.Hysteresis
	landed        hysteresis.Hysteresis
	freefall      hysteresis.Hysteresis
	groundEffect  hysteresis.Hysteresis

	state         State
	latest        Output
	published     bool
	lastPublished Output

	stats     Stats
	airborne  bool
	takeoffUs uint64
}

// New creates an engine. publisher may be nil.
func New(rules RuleSet, inputs InputSource, paramSrc ParameterSource, publisher Publisher, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		rules:     rules,
		inputs:    inputs,
		params:    paramSrc,
		publisher: publisher,
		logger:    logger,
	}
}

// Update runs one detector cycle at nowUs and returns its output.
func (e *Engine) Update(nowUs uint64) Output {
	e.refreshParameters(nowUs)

	e.inputs.Latest(&e.snapshot)
	c := Cycle{
		NowUs:  nowUs,
		Params: e.current,
		Inputs: e.snapshot.View(nowUs, e.cfg.Freshness),
		Gate:   e.cfg.Gate,
	}

	// Fixed order: each predicate sees the debounced results before it
	e.rules.Prepare(&c)
	c.GroundContact = e.groundContact.Update(e.rules.GroundContact(&c), nowUs)
	c.MaybeLandedRaw = e.rules.MaybeLanded(&c)
	c.MaybeLanded = e.maybeLanded.Update(c.MaybeLandedRaw, nowUs)
	c.Landed = e.landed.Update(e.rules.Landed(&c), nowUs)
	c.Freefall = e.freefall.Update(e.rules.Freefall(&c), nowUs)
	inGroundEffect := e.groundEffect.Update(e.rules.GroundEffect(&c), nowUs)

	state := deriveState(&c)
	if state != e.state {
		e.transition(e.state, state, nowUs)
		e.state = state
	}

	out := Output{
		TimestampUs:    nowUs,
		State:          state,
		Freefall:       state == StateFreefall,
		GroundContact:  state.OnGround(),
		MaybeLanded:    state >= StateMaybeLanded,
		Landed:         state == StateLanded,
		InGroundEffect: inGroundEffect,
		Flags:          e.rules.Flags(),
	}
	e.latest = out
	e.publish(out)
	return out
}

// deriveState applies the fixed precedence: free-fall, then the landing
// lattice from highest confidence down.
func deriveState(c *Cycle) State {
	switch {
	case c.Freefall:
		return StateFreefall
	case c.Landed:
		return StateLanded
	case c.MaybeLanded:
		return StateMaybeLanded
	case c.GroundContact:
		return StateGroundContact
	default:
		return StateFlying
	}
}

// refreshParameters reloads the snapshot at most once per ParamInterval and
// reapplies hysteresis times. Open debounce windows keep their old hold.
func (e *Engine) refreshParameters(nowUs uint64) {
	if e.paramsLoaded && nowUs-e.lastParamsUs < uint64(e.cfg.ParamInterval/time.Microsecond) {
		return
	}
	p := e.params.Snapshot()
	e.lastParamsUs = nowUs
	if e.paramsLoaded && p == e.current {
		return
	}
	e.current = p
	e.paramsLoaded = true

	t := e.rules.Timing(p)
	applyHold(&e.groundContact, t.GroundContact)
	applyHold(&e.maybeLanded, t.MaybeLanded)
	applyHold(&e.landed, t.Landed)
	applyHold(&e.freefall, t.Freefall)
	applyHold(&e.groundEffect, t.GroundEffect)
}

func applyHold(h *hysteresis.Hysteresis, hold Hold) {
	h.SetHysteresisTimeFrom(false, hold.FromFalse)
	h.SetHysteresisTimeFrom(true, hold.FromTrue)
}

func (e *Engine) transition(from, to State, nowUs uint64) {
	e.logger.Info("land detector state", "from", from.String(), "to", to.String(), "t_us", nowUs)

	switch {
	case to == StateLanded:
		e.stats.Landings++
		if e.airborne {
			e.stats.FlightTime += usToDuration(nowUs - e.takeoffUs)
			e.airborne = false
		}
	case from == StateLanded:
		e.stats.Takeoffs++
		e.airborne = true
		e.takeoffUs = nowUs
	}
	if to == StateFreefall {
		e.stats.Freefalls++
		e.logger.Warn("free-fall detected", "t_us", nowUs)
	}
}

func (e *Engine) publish(out Output) {
	if e.publisher == nil {
		return
	}
	due := !e.published ||
		!sameReport(out, e.lastPublished) ||
		out.TimestampUs-e.lastPublished.TimestampUs >= uint64(e.cfg.PublishInterval/time.Microsecond)
	if !due {
		return
	}
	// Published or not, don't retry every tick
	e.published = true
	e.lastPublished = out
	if err := e.publisher.PublishLanded(out); err != nil {
		e.logger.Warn("publish land detector output", "error", err)
	}
}

func sameReport(a, b Output) bool {
	a.TimestampUs = 0
	b.TimestampUs = 0
	return a == b
}

// State returns the state derived in the last cycle; StateUnknown before the
// first cycle.
func (e *Engine) State() State {
	return e.state
}

// Latest returns the output of the last cycle.
func (e *Engine) Latest() Output {
	return e.latest
}

// Parameters returns the snapshot used in the last cycle.
func (e *Engine) Parameters() params.Parameters {
	return e.current
}

// Stats returns transition counts and accumulated flight time up to the last
// cycle, including a flight still in progress.
func (e *Engine) Stats() Stats {
	s := e.stats
	if e.airborne && e.latest.TimestampUs > e.takeoffUs {
		s.FlightTime += usToDuration(e.latest.TimestampUs - e.takeoffUs)
	}
	return s
}

func usToDuration(us uint64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// Publishers fans output out to several publishers. Every publisher is
// called; their errors are joined.
type Publishers []Publisher

// PublishLanded implements Publisher.
func (ps Publishers) PublishLanded(out Output) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishLanded(out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
