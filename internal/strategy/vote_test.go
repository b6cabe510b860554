package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alias1177/PaperTrader/models"
)

func sig(name string, action models.Action) models.Signal {
	return models.Signal{Strategy: name, Action: action, Reason: name + " says " + string(action)}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		signals     []models.Signal
		quorum      int
		wantOK      bool
		wantAction  models.Action
		wantSources []string
	}{
		{
			name:    "no signals",
			signals: nil,
			quorum:  2,
		},
		{
			name:    "single vote below quorum",
			signals: []models.Signal{sig("RSI", models.ActionBuy)},
			quorum:  2,
		},
		{
			name: "buy consensus keeps input order",
			signals: []models.Signal{
				sig("MACD", models.ActionBuy),
				sig("RSI", models.ActionSell),
				sig("EMA Crossover", models.ActionBuy),
			},
			quorum:      2,
			wantOK:      true,
			wantAction:  models.ActionBuy,
			wantSources: []string{"MACD", "EMA Crossover"},
		},
		{
			name: "sell consensus",
			signals: []models.Signal{
				sig("RSI", models.ActionSell),
				sig("MACD", models.ActionSell),
				sig("EMA Crossover", models.ActionSell),
			},
			quorum:      2,
			wantOK:      true,
			wantAction:  models.ActionSell,
			wantSources: []string{"RSI", "MACD", "EMA Crossover"},
		},
		{
			name: "both sides reach quorum resolves to no action",
			signals: []models.Signal{
				sig("RSI", models.ActionBuy),
				sig("MACD", models.ActionBuy),
				sig("EMA Crossover", models.ActionSell),
				sig("Bollinger Bands", models.ActionSell),
			},
			quorum: 2,
		},
		{
			name: "higher quorum",
			signals: []models.Signal{
				sig("RSI", models.ActionBuy),
				sig("MACD", models.ActionBuy),
			},
			quorum: 3,
		},
		{
			name: "zero quorum falls back to default",
			signals: []models.Signal{
				sig("RSI", models.ActionBuy),
				sig("MACD", models.ActionBuy),
			},
			quorum:      0,
			wantOK:      true,
			wantAction:  models.ActionBuy,
			wantSources: []string{"RSI", "MACD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, ok := Reconcile(tt.signals, tt.quorum)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantAction, decision.Action)
			assert.Equal(t, tt.wantSources, decision.Sources)
		})
	}
}

func TestReconcileReasonIsDeterministic(t *testing.T) {
	signals := []models.Signal{sig("RSI", models.ActionBuy), sig("MACD", models.ActionBuy)}

	first, _ := Reconcile(signals, 2)
	second, _ := Reconcile(signals, 2)

	assert.Equal(t, "consensus from [RSI, MACD]", first.Reason)
	assert.Equal(t, first, second)
	assert.Equal(t, "RSI+MACD", first.Strategy())
}
