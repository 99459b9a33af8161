package reinforcement

/*
DQN with a replay buffer and a lagged target network, over one of three Q-function
architectures. The loop is sequential: act, step, store, and every train_frequency steps
sample a batch and run the update sequence

	PreUpdate (DSOM codebook) -> TD targets -> gradient -> Adam -> PostUpdate (SDM renormalization)

in that fixed order. Nothing else mutates the live parameters, so action selection always sees
the result of the last complete update. The target parameters are written only by SyncTarget.
*/

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"sdmrl/models"
	"sdmrl/q_network"
	"sdmrl/replay"
	"sdmrl/schedule"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Number of recent episodic returns kept for the learning curve.
	maxReturns = 500
	// SPS is logged every logInterval training steps.
	logInterval = 100
	// Minimum time between published snapshots.
	publishInterval = 250 * time.Millisecond
)

// Replay stores transitions and samples uniform batches of them.
type Replay interface {
	Add(models.Transition)
	Sample(n int) (models.Batch, error)
	Len() int
}

// ProgressFunc is a callback by which the training method can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, *models.Snapshot)

// cellProber is implemented by grid environments that report per-cell action values.
type cellProber interface {
	Probe(qvalues func(obs *mat.Dense) *mat.Dense) [][]models.CellValue
}

// Trainer runs DQN for a single environment.
type Trainer struct {
	cfg       *DQNConfig
	env       models.Environment
	buffer    Replay
	qfn       q_network.QFunction
	live      q_network.Params
	target    q_network.Params
	optimizer *q_network.Adam
	scheduler schedule.Scheduler
	rng       *rand.Rand
	stats     *Stats

	step    int
	episode int
	returns []float64

	lastPublish time.Time
}

// NewTrainer validates the configuration against the environment and initializes the
// live and target parameters. Environments that are not already wrapped are wrapped in
// models.AutoReset. A nil buffer is replaced by a uniform replay buffer of cfg.BufferSize transitions.
func NewTrainer(
	cfg *DQNConfig,
	env models.Environment,
	buffer Replay,
) (*Trainer, error) {
	if cfg.BellmanUpdate == SARSA {
		return nil, ErrSarsaUnsupported
	}
	if cfg.Optimizer != ADAM {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOptimizer, cfg.Optimizer)
	}
	if cfg.NumEnvs != 1 {
		return nil, fmt.Errorf("%w: num_envs=%d", ErrVectorizedEnvs, cfg.NumEnvs)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	scheduler, err := schedule.New(cfg.Scheduler, cfg.SchedulerParams())
	if err != nil {
		return nil, err
	}

	qfn, err := q_network.New(cfg.Architecture, env.ObservationSize(), env.NumActions(), cfg.Net)
	if err != nil {
		return nil, err
	}

	if buffer == nil {
		if buffer, err = replay.NewBuffer(cfg.BufferSize, cfg.Seed); err != nil {
			return nil, err
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	live := qfn.Init(rng)

	return &Trainer{
		cfg:       cfg,
		env:       models.WithAutoReset(env),
		buffer:    buffer,
		qfn:       qfn,
		live:      live,
		target:    live.Clone(),
		optimizer: q_network.NewAdam(cfg.LearningRate),
		scheduler: scheduler,
		rng:       rng,
		stats:     NewStats(),
	}, nil
}

func (t *Trainer) Stats() *Stats                  { return t.stats }
func (t *Trainer) QFunction() q_network.QFunction { return t.qfn }
func (t *Trainer) LiveParams() q_network.Params   { return t.live }
func (t *Trainer) TargetParams() q_network.Params { return t.target }
func (t *Trainer) Buffer() Replay                 { return t.buffer }
func (t *Trainer) Step() int                      { return t.step }
func (t *Trainer) Episode() int                   { return t.episode }

// Epsilon is the current exploration rate. The exponential schedule decays per
// finished episode, the linear one per step.
func (t *Trainer) Epsilon() float64 {
	if t.cfg.Scheduler.DrivenByEpisodes() {
		return t.scheduler.Rate(t.episode)
	}
	return t.scheduler.Rate(t.step)
}

// SelectAction is epsilon-greedy over the live parameters.
func (t *Trainer) SelectAction(obs []float64, epsilon float64) int {
	if t.rng.Float64() < epsilon {
		return t.rng.Intn(t.env.NumActions())
	}
	q := t.qfn.Forward(t.live, mat.NewDense(1, len(obs), obs))
	return q_network.Argmax(q)[0]
}

// Run trains for cfg.TotalTimesteps steps, then checkpoints and evaluates if cfg.SaveModel is set.
// progressFn may be nil.
func (t *Trainer) Run(ctx context.Context, progressFn ProgressFunc) (err error) {
	var obs []float64
	if obs, _, err = t.env.Reset(t.cfg.Seed); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	start := time.Now()
	for t.step = 0; t.step < t.cfg.TotalTimesteps; t.step++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("training stopped at global_step=%d: %w", t.step, ctx.Err())
		default:
		}

		epsilon := t.Epsilon()
		t.stats.recordStep(t.step, epsilon)
		action := t.SelectAction(obs, epsilon)

		var result models.StepResult
		if result, err = t.env.Step(action); err != nil {
			return fmt.Errorf("global_step=%d: %w", t.step, err)
		}

		if final := result.Info.FinalInfo; final != nil {
			t.episode++
			log.Printf("global_step=%d, episodic_return=%v", t.step, final.Return)
			t.stats.recordEpisode(t.episode, final.Return)
			t.recordReturn(final.Return)
			t.publish(ctx, progressFn, false)
		}

		// A truncated episode still bootstraps from its true final state, not the reset state.
		nextObs := result.Observation
		if result.Truncated {
			if result.Info.FinalObservation == nil {
				return fmt.Errorf("global_step=%d: %w", t.step, models.ErrMissingFinalObservation)
			}
			nextObs = result.Info.FinalObservation
		}

		t.buffer.Add(models.Transition{
			Observation:     obs,
			Action:          action,
			Reward:          result.Reward,
			NextObservation: nextObs,
			Done:            result.Terminated,
		})
		obs = result.Observation

		if t.step <= t.cfg.LearningStarts {
			continue
		}

		if t.step%t.cfg.TrainFrequency == 0 {
			var batch models.Batch
			if batch, err = t.buffer.Sample(t.cfg.BatchSize); err != nil {
				return fmt.Errorf("global_step=%d: %w", t.step, err)
			}
			var loss, qMean float64
			if loss, qMean, err = t.TrainStep(batch, epsilon); err != nil {
				return fmt.Errorf("global_step=%d: %w", t.step, err)
			}
			t.stats.recordTraining(loss, qMean)

			if t.step%logInterval == 0 {
				sps := float64(t.step) / time.Since(start).Seconds()
				t.stats.recordSPS(sps)
				log.Printf("SPS: %d", int(sps))
				t.publish(ctx, progressFn, false)
			}
		}

		if t.step%t.cfg.TargetNetworkFrequency == 0 {
			t.SyncTarget()
		}
	}
	t.publish(ctx, progressFn, true)

	if !t.cfg.SaveModel {
		return nil
	}
	return t.checkpointAndEvaluate(ctx)
}

// TrainStep performs one complete parameter update from the batch and returns the TD loss
// and the mean predicted value of the taken actions. epsilon is the current exploration rate,
// to which the DSOM gate's smoothing is coupled unless fixed by configuration.
func (t *Trainer) TrainStep(batch models.Batch, epsilon float64) (loss, qMean float64, err error) {
	if dsomNet, ok := t.qfn.(*q_network.DSOMNet); ok {
		k := t.cfg.GateSmoothing
		if k == 0 {
			k = epsilon
		}
		dsomNet.SetSmoothing(k)
	}

	if err = t.qfn.PreUpdate(t.live, batch.Observations); err != nil {
		return
	}

	targets := t.TDTargets(batch)
	loss, qPred, grads := t.qfn.Gradient(t.live, batch.Observations, batch.Actions, targets)
	t.optimizer.Apply(t.live, grads)
	t.qfn.PostUpdate(t.live)

	qMean = floats.Sum(qPred) / float64(len(qPred))
	return
}

// TDTargets computes r + (1-done)·γ·max_a Q_target(next_obs, a) for every transition in the batch.
func (t *Trainer) TDTargets(batch models.Batch) []float64 {
	nextMax := q_network.MaxValues(t.qfn.Forward(t.target, batch.NextObservations))
	targets := make([]float64, batch.Size())
	for i := range targets {
		targets[i] = batch.Rewards[i] + (1-batch.Dones[i])*t.cfg.Gamma*nextMax[i]
	}
	return targets
}

// SyncTarget moves the target parameters toward the live ones by tau.
func (t *Trainer) SyncTarget() {
	q_network.SoftUpdate(t.target, t.live, t.cfg.Tau)
}

// CheckpointPath is where the live parameters are saved at the end of the run.
func (t *Trainer) CheckpointPath() string {
	return filepath.Join(t.cfg.CheckpointDir, t.cfg.RunName, t.cfg.ExpName+".model")
}

func (t *Trainer) checkpointAndEvaluate(ctx context.Context) error {
	path := t.CheckpointPath()
	if err := q_network.SaveParams(path, t.live); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	log.Printf("model saved to %s", path)

	if t.cfg.EvalEpisodes <= 0 {
		return nil
	}
	params, err := q_network.LoadParams(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	returns, err := Evaluate(ctx, t.qfn, params, models.Unwrap(t.env), t.cfg.EvalEpisodes, t.cfg.EvalEpsilon, t.cfg.Seed)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	for i, r := range returns {
		log.Printf("eval_episode=%d, episodic_return=%v", i, r)
	}
	return nil
}

func (t *Trainer) recordReturn(r float64) {
	t.returns = append(t.returns, r)
	if len(t.returns) > maxReturns {
		t.returns = t.returns[len(t.returns)-maxReturns:]
	}
}

// publish hands a snapshot to progressFn, at most once per publishInterval unless forced.
func (t *Trainer) publish(ctx context.Context, progressFn ProgressFunc, force bool) {
	if progressFn == nil {
		return
	}
	if !force && time.Since(t.lastPublish) < publishInterval {
		return
	}
	t.lastPublish = time.Now()
	progressFn(ctx, t.Snapshot())
}

// Snapshot copies the trainer's current progress into a view model.
func (t *Trainer) Snapshot() *models.Snapshot {
	values := t.stats.Values()
	snapshot := &models.Snapshot{
		Step:    t.step,
		Episode: t.episode,
		Epsilon: values["epsilon"],
		Loss:    values["td_loss"],
		QMean:   values["q_values"],
		SPS:     values["sps"],
		Returns: append([]float64(nil), t.returns...),
	}

	if dsomNet, ok := t.qfn.(*q_network.DSOMNet); ok {
		codebook := t.live[q_network.CodebookParam]
		rows, _ := codebook.Dims()
		snapshot.GridSide = dsomNet.Layer().Side
		snapshot.Codebook = make([][]float64, rows)
		for i := range snapshot.Codebook {
			snapshot.Codebook[i] = mat.Row(nil, i, codebook)
		}
	}

	if prober, ok := models.Unwrap(t.env).(cellProber); ok {
		snapshot.Cells = prober.Probe(func(obs *mat.Dense) *mat.Dense {
			return t.qfn.Forward(t.live, obs)
		})
	}
	return snapshot
}
