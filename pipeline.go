package nebula

import (
	"github.com/google/uuid"
)

// FrameStats summarizes one pipeline step.
type FrameStats struct {
	Frame   uint64  `json:"frame"`
	Live    int     `json:"live"`
	Emitted int     `json:"emitted"`
	Dropped int     `json:"dropped"`
	Expired int     `json:"expired"`
	Dt      float32 `json:"dt"`
}

// Pipeline is the CPU-side orchestrator of the stage sequence: it owns the
// store, tracks which physical buffer currently plays which role, and runs
// Emit -> Integrate -> Compact with the counter protocol between them. Each
// stage fully completes before the next starts, the bulk-synchronous
// equivalent of the GPU barrier between dispatches.
type Pipeline struct {
	cfg        Config
	store      *Store
	emitter    *Emitter
	integrator *Integrator
	compactor  *Compactor
	log        Logger
	id         string

	// Buffer role rotation. cur holds the survivors of the previous frame
	// (plus this frame's spawns), next receives the integration output, out
	// receives the compacted result and becomes the next frame's cur.
	cur, next, out int
	frame          uint64
}

func NewPipeline(cfg Config, log Logger) (*Pipeline, error) {
	cfg.applyDefaults()
	if log == nil {
		log = NewNopLogger()
	}
	store, err := NewStore(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	pl := &Pipeline{
		cfg:        cfg,
		store:      store,
		emitter:    NewEmitter(cfg),
		integrator: NewIntegrator(cfg),
		compactor:  NewCompactor(cfg),
		log:        log,
		id:         uuid.NewString(),
		cur:        0,
		next:       1,
		out:        2,
	}
	log.Infof("pipeline %s: capacity=%d workers=%d", pl.id, cfg.Capacity, cfg.Workers)
	return pl, nil
}

func (pl *Pipeline) Id() string    { return pl.id }
func (pl *Pipeline) Store() *Store { return pl.store }
func (pl *Pipeline) Config() Config {
	return pl.cfg
}

// Step runs one frame. emit may be nil to skip emission this frame.
func (pl *Pipeline) Step(emit *EmitParams, integ IntegrateParams) FrameStats {
	liveBefore := pl.store.LiveCount()

	emitted, requested := 0, 0
	if emit != nil {
		requested = int(emit.Count)
		emitted = pl.emitter.Emit(pl.store, pl.store.Buffer(pl.cur), *emit)
	}

	pl.integrator.Integrate(pl.store.Buffer(pl.cur), pl.store.Buffer(pl.next), integ)

	// The counter reset between emission and compaction is the orchestrator's
	// responsibility; the stages themselves never touch it.
	pl.store.ResetCounter(0)
	live := pl.compactor.Compact(pl.store, pl.store.Buffer(pl.next), pl.store.Buffer(pl.out))

	expired := liveBefore + emitted - live
	if expired < 0 {
		expired = 0
	}

	pl.cur, pl.next, pl.out = pl.out, pl.cur, pl.next
	pl.frame++

	stats := FrameStats{
		Frame:   pl.frame,
		Live:    live,
		Emitted: emitted,
		Dropped: requested - emitted,
		Expired: expired,
		Dt:      integ.Dt,
	}
	if pl.log.DebugEnabled() {
		pl.log.Debugf("frame %d: live=%d emitted=%d dropped=%d expired=%d",
			stats.Frame, stats.Live, stats.Emitted, stats.Dropped, stats.Expired)
	}
	return stats
}

// LiveCount is the authoritative particle count after the last compaction.
func (pl *Pipeline) LiveCount() int { return pl.store.LiveCount() }

// Particles returns the compacted survivors of the last Step. Valid until the
// next Step; order is unspecified.
func (pl *Pipeline) Particles() []Particle {
	return pl.store.Buffer(pl.cur)[:pl.store.LiveCount()]
}
