// Package policy classifies proposed spends into tiers and actions. The
// engine is pure: no I/O, no clock, just the configured thresholds.
package policy

import (
	"fmt"
	"sort"

	"github.com/quackstro/openclaw-doge/pkg/helpers"
)

// Action is what the spend pipeline does with a classified spend.
type Action string

const (
	ActionAutoApprove     Action = "auto-approve"
	ActionNotify          Action = "notify"
	ActionDelayApprove    Action = "delay-approve"
	ActionRequireApproval Action = "require-approval"
)

// Tier is one user-configured band of spend amounts.
type Tier struct {
	Name         string `yaml:"name"`
	MaxKoinu     uint64 `yaml:"max_koinu"` // inclusive upper bound; 0 means unbounded
	Action       Action `yaml:"action"`
	DelayMinutes int    `yaml:"delay_minutes,omitempty"` // delay-approve only
}

// Decision is the classification result for one proposed spend.
type Decision struct {
	Tier         string
	Action       Action
	DelayMinutes int
}

// Engine classifies amounts against an ordered tier table.
type Engine struct {
	tiers []Tier
}

// DefaultTiers returns the default policy:
// up to 10 DOGE auto-approves, up to 100 DOGE notifies, above that requires
// approval.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "small", MaxKoinu: 10 * helpers.KoinuPerDoge, Action: ActionAutoApprove},
		{Name: "medium", MaxKoinu: 100 * helpers.KoinuPerDoge, Action: ActionNotify},
		{Name: "large", MaxKoinu: 0, Action: ActionRequireApproval},
	}
}

// NewEngine builds an engine from a tier table. Tiers are sorted by bound;
// exactly one unbounded tier must terminate the table.
func NewEngine(tiers []Tier) (*Engine, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("policy: at least one tier required")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MaxKoinu == 0 {
			return false
		}
		if sorted[j].MaxKoinu == 0 {
			return true
		}
		return sorted[i].MaxKoinu < sorted[j].MaxKoinu
	})

	unbounded := 0
	for _, t := range sorted {
		if t.MaxKoinu == 0 {
			unbounded++
		}
		switch t.Action {
		case ActionAutoApprove, ActionNotify, ActionDelayApprove, ActionRequireApproval:
		default:
			return nil, fmt.Errorf("policy: tier %q has unknown action %q", t.Name, t.Action)
		}
		if t.Action == ActionDelayApprove && t.DelayMinutes <= 0 {
			return nil, fmt.Errorf("policy: delay-approve tier %q needs delay_minutes", t.Name)
		}
	}
	if unbounded != 1 {
		return nil, fmt.Errorf("policy: exactly one unbounded tier required, got %d", unbounded)
	}
	if sorted[len(sorted)-1].MaxKoinu != 0 {
		return nil, fmt.Errorf("policy: the unbounded tier must be last")
	}

	return &Engine{tiers: sorted}, nil
}

// MustDefault returns an engine with the default tier table.
func MustDefault() *Engine {
	e, err := NewEngine(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return e
}

// Classify maps an amount to the first tier whose bound admits it.
func (e *Engine) Classify(amountKoinu uint64) Decision {
	for _, t := range e.tiers {
		if t.MaxKoinu == 0 || amountKoinu <= t.MaxKoinu {
			return Decision{Tier: t.Name, Action: t.Action, DelayMinutes: t.DelayMinutes}
		}
	}
	// Unreachable: the table always ends with an unbounded tier.
	last := e.tiers[len(e.tiers)-1]
	return Decision{Tier: last.Name, Action: last.Action, DelayMinutes: last.DelayMinutes}
}

// Tiers returns a copy of the classification table.
func (e *Engine) Tiers() []Tier {
	out := make([]Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}
