package coordinator

import (
	"fmt"
	"math/big"
	"time"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/core/faults"
)

// Policy holds the constants every submitted step is built from.
type Policy struct {
	Providers      []string
	StepBudget     *big.Int
	AcceptWindow   time.Duration
	CompleteWindow time.Duration
}

// Validate is meant to run at startup; a bad policy must keep the process
// from serving.
func (p Policy) Validate() error {
	if len(p.Providers) < entity.StepCount {
		return faults.Configf("need at least %d providers, got %d", entity.StepCount, len(p.Providers))
	}
	for i, addr := range p.Providers[:entity.StepCount] {
		if addr == "" {
			return faults.Configf("provider %d is empty", i+1)
		}
	}
	if p.StepBudget == nil || p.StepBudget.Sign() <= 0 {
		return faults.Configf("step budget must be positive")
	}
	if p.AcceptWindow <= 0 || p.CompleteWindow <= 0 {
		return faults.Configf("accept and complete windows must be positive")
	}
	return nil
}

// BuildSteps turns descriptions into step specifications. Providers are
// assigned positionally and every deadline is computed from the same now.
func BuildSteps(descriptions []string, p Policy, now time.Time) ([]entity.StepSpec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(descriptions) != entity.StepCount {
		return nil, fmt.Errorf("%w: got %d step descriptions, want %d",
			faults.ErrDecomposition, len(descriptions), entity.StepCount)
	}

	acceptBy := now.Add(p.AcceptWindow)
	completeBy := now.Add(p.CompleteWindow)

	steps := make([]entity.StepSpec, entity.StepCount)
	for i, desc := range descriptions {
		steps[i] = entity.StepSpec{
			Provider:         p.Providers[i],
			Budget:           new(big.Int).Set(p.StepBudget),
			Description:      desc,
			AcceptDeadline:   acceptBy,
			CompleteDeadline: completeBy,
		}
	}
	return steps, nil
}
