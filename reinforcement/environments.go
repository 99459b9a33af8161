package reinforcement

import (
	"context"
	"fmt"
	"log"

	"sdmrl/cart_pole"
	"sdmrl/grid_world"
	"sdmrl/models"
)

// NewEnvironment builds the configured environment.
func NewEnvironment(kind Environment, seed int64) (models.Environment, error) {
	switch kind {
	case CARTPOLE:
		return cart_pole.NewCartPole(seed), nil
	case RACETRACK:
		return grid_world.NewRacetrack(grid_world.FullTrack, seed)
	case RACETRACK_DEBUG:
		return grid_world.NewRacetrack(grid_world.DebugTrack, seed)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, kind)
}

// Train builds the environment and trainer for cfg and runs it to completion.
func Train(
	ctx context.Context,
	cfg *DQNConfig,
	progressFn ProgressFunc,
) error {
	env, err := NewEnvironment(cfg.Environment, cfg.Seed)
	if err != nil {
		return err
	}
	trainer, err := NewTrainer(cfg, env, nil)
	if err != nil {
		return err
	}
	log.Printf("hyperparameters: %s", cfg)
	return trainer.Run(ctx, progressFn)
}
