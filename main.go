/*
sdmrl trains DQN agents whose hidden layer is either a plain dense layer or passes through an
associative memory (a dynamic self-organizing map or a sparse distributed memory), on cart-pole
or the race track problem, and optionally serves a single page that visualizes training in
realtime: the learning curve, the DSOM codebook, and the greedy values and policy of the race track.

Training is configured by a yaml file (see config.yaml); flags only choose the file and the server.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sdmrl/grid_world"
	"sdmrl/models"
	"sdmrl/reinforcement"
	"sdmrl/server"

	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "./config.yaml", "path to the training config")
	dbg        = flag.Bool("debug", false, "debug mode: the small race track, and the learned policy is logged")
	serve      = flag.Bool("serve", false, "serve the training dashboard")
	host       = flag.String("host", "", "The host ip")
	port       = flag.String("port", "8080", "The host port")
)

func runApp() (err error) {
	var algConfig *reinforcement.TrainingConfig
	if algConfig, err = reinforcement.FromYaml(*configPath); err != nil {
		return
	}

	var cfg *reinforcement.DQNConfig
	if cfg, err = algConfig.Resolve(); err != nil {
		return
	}
	if *dbg && cfg.Environment == reinforcement.RACETRACK {
		cfg.Environment = reinforcement.RACETRACK_DEBUG
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()

	trainingCtx, trainingCancel, err := algConfig.WithTrainingDeadline(appCtx)
	if err != nil {
		return
	}
	defer trainingCancel()

	env, err := reinforcement.NewEnvironment(cfg.Environment, cfg.Seed)
	if err != nil {
		return
	}
	trainer, err := reinforcement.NewTrainer(cfg, env, nil)
	if err != nil {
		return
	}
	log.Printf("hyperparameters: %s", cfg)

	if !*serve {
		err = train(trainingCtx, trainer, nil)
		return
	}

	snapshots := make(chan *models.Snapshot)
	var srv *server.Server
	if srv, err = server.NewServer(
		appCtx,
		*host+":"+*port,
		trainer.Snapshot(),
		snapshots,
		trainer.Stats(),
	); err != nil {
		return
	}

	// The server outlives training, until interrupted.
	group, groupCtx := errgroup.WithContext(appCtx)
	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	group.Go(func() error {
		return train(trainingCtx, trainer, exportSnapshots(snapshots))
	})
	return group.Wait()
}

// train runs the trainer; reaching the training deadline is a normal stop.
func train(
	ctx context.Context,
	trainer *reinforcement.Trainer,
	progressFn reinforcement.ProgressFunc,
) error {
	err := trainer.Run(ctx, progressFn)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Println(err)
		err = nil
	}

	if *dbg {
		if cells := trainer.Snapshot().Cells; cells != nil {
			log.Printf("greedy policy:\n%s", grid_world.ShowPolicy(cells))
		}
	}
	return err
}

// exportSnapshots returns a progress func sending each snapshot to the server's views.
// It blocks until the views receive the snapshot or training is cancelled.
func exportSnapshots(snapshots chan<- *models.Snapshot) reinforcement.ProgressFunc {
	return func(ctx context.Context, snapshot *models.Snapshot) {
		select {
		case snapshots <- snapshot:
		case <-ctx.Done():
		}
	}
}

func main() {
	flag.Parse()
	if err := runApp(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
