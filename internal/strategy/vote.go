package strategy

import (
	"fmt"
	"strings"

	"github.com/Alias1177/PaperTrader/models"
)

// DefaultQuorum is the number of agreeing votes needed for a decision.
const DefaultQuorum = 2

// Reconcile combines independent signals into one decision. A side wins only when it reaches
// quorum and the other side does not; when both or neither reach quorum there is no decision.
// Sources keep the order in which the signals were given.
func Reconcile(signals []models.Signal, quorum int) (models.Decision, bool) {
	if quorum <= 0 {
		quorum = DefaultQuorum
	}

	var buys, sells []string
	for _, s := range signals {
		switch s.Action {
		case models.ActionBuy:
			buys = append(buys, s.Strategy)
		case models.ActionSell:
			sells = append(sells, s.Strategy)
		}
	}

	buyQuorum := len(buys) >= quorum
	sellQuorum := len(sells) >= quorum

	switch {
	case buyQuorum && !sellQuorum:
		return newDecision(models.ActionBuy, buys), true
	case sellQuorum && !buyQuorum:
		return newDecision(models.ActionSell, sells), true
	default:
		return models.Decision{}, false
	}
}

func newDecision(action models.Action, sources []string) models.Decision {
	return models.Decision{
		Action:  action,
		Sources: sources,
		Reason:  fmt.Sprintf("consensus from [%s]", strings.Join(sources, ", ")),
	}
}
