package reinforcement

import (
	"context"
	"fmt"
	"math/rand"

	"sdmrl/models"
	"sdmrl/q_network"

	"gonum.org/v1/gonum/mat"
)

// Evaluate plays episodes with an epsilon-greedy policy over params and returns their returns.
// The environment is reset with seed at the start of evaluation, then continues episode to episode.
func Evaluate(
	ctx context.Context,
	qfn q_network.QFunction,
	params q_network.Params,
	env models.Environment,
	episodes int,
	epsilon float64,
	seed int64,
) ([]float64, error) {
	env = models.WithAutoReset(env)
	rng := rand.New(rand.NewSource(seed))

	obs, _, err := env.Reset(seed)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	returns := make([]float64, 0, episodes)
	for len(returns) < episodes {
		select {
		case <-ctx.Done():
			return returns, ctx.Err()
		default:
		}

		var action int
		if rng.Float64() < epsilon {
			action = rng.Intn(env.NumActions())
		} else {
			action = q_network.Argmax(qfn.Forward(params, mat.NewDense(1, len(obs), obs)))[0]
		}

		result, err := env.Step(action)
		if err != nil {
			return returns, err
		}
		if final := result.Info.FinalInfo; final != nil {
			returns = append(returns, final.Return)
		}
		obs = result.Observation
	}
	return returns, nil
}
