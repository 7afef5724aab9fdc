package entity

import (
	"math/big"
	"time"
)

// StepCount is the fixed arity of a multihop submission.
const StepCount = 3

// StepSpec is one job of a multihop submission as the registry expects it.
type StepSpec struct {
	Provider         string
	Budget           *big.Int
	Description      string
	AcceptDeadline   time.Time
	CompleteDeadline time.Time
}

// TotalBudget sums the budgets of every step. Nil budgets count as zero.
func TotalBudget(steps []StepSpec) *big.Int {
	total := new(big.Int)
	for _, s := range steps {
		if s.Budget != nil {
			total.Add(total, s.Budget)
		}
	}
	return total
}

// Decomposition is the fixed-arity result of splitting an instruction.
type Decomposition struct {
	Step1 string `json:"step1"`
	Step2 string `json:"step2"`
	Step3 string `json:"step3"`
}

// Descriptions returns the steps in submission order.
func (d Decomposition) Descriptions() []string {
	return []string{d.Step1, d.Step2, d.Step3}
}
