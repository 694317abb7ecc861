package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quackstro/openclaw-doge/pkg/helpers"
)

func TestDefaultClassification(t *testing.T) {
	e := MustDefault()

	tests := []struct {
		name   string
		doge   uint64
		tier   string
		action Action
	}{
		{"tiny", 1, "small", ActionAutoApprove},
		{"at small bound", 10, "small", ActionAutoApprove},
		{"just above small", 11, "medium", ActionNotify},
		{"at medium bound", 100, "medium", ActionNotify},
		{"large", 101, "large", ActionRequireApproval},
		{"huge", 1_000_000, "large", ActionRequireApproval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Classify(tt.doge * helpers.KoinuPerDoge)
			require.Equal(t, tt.tier, d.Tier)
			require.Equal(t, tt.action, d.Action)
		})
	}
}

func TestZeroAmountIsSmallest(t *testing.T) {
	d := MustDefault().Classify(0)
	require.Equal(t, ActionAutoApprove, d.Action)
}

func TestCustomTiersWithDelay(t *testing.T) {
	e, err := NewEngine([]Tier{
		{Name: "free", MaxKoinu: 100, Action: ActionAutoApprove},
		{Name: "slow", MaxKoinu: 1000, Action: ActionDelayApprove, DelayMinutes: 15},
		{Name: "gated", MaxKoinu: 0, Action: ActionRequireApproval},
	})
	require.NoError(t, err)

	d := e.Classify(500)
	require.Equal(t, ActionDelayApprove, d.Action)
	require.Equal(t, 15, d.DelayMinutes)
}

func TestTierOrderNormalized(t *testing.T) {
	// Out-of-order input is sorted by bound.
	e, err := NewEngine([]Tier{
		{Name: "gated", MaxKoinu: 0, Action: ActionRequireApproval},
		{Name: "free", MaxKoinu: 100, Action: ActionAutoApprove},
	})
	require.NoError(t, err)
	require.Equal(t, "free", e.Classify(50).Tier)
	require.Equal(t, "gated", e.Classify(101).Tier)
}

func TestInvalidTables(t *testing.T) {
	_, err := NewEngine(nil)
	require.Error(t, err)

	// No unbounded tier.
	_, err = NewEngine([]Tier{{Name: "a", MaxKoinu: 10, Action: ActionNotify}})
	require.Error(t, err)

	// Two unbounded tiers.
	_, err = NewEngine([]Tier{
		{Name: "a", MaxKoinu: 0, Action: ActionNotify},
		{Name: "b", MaxKoinu: 0, Action: ActionNotify},
	})
	require.Error(t, err)

	// Unknown action.
	_, err = NewEngine([]Tier{{Name: "a", MaxKoinu: 0, Action: "yolo"}})
	require.Error(t, err)

	// delay-approve without a delay.
	_, err = NewEngine([]Tier{
		{Name: "a", MaxKoinu: 10, Action: ActionDelayApprove},
		{Name: "b", MaxKoinu: 0, Action: ActionNotify},
	})
	require.Error(t, err)
}
