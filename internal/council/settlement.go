package council

// ComputeSettlement derives every payout from the decision sequences.
// It is a pure function: identical inputs always produce identical output.
//
// For an agent with internal decision D and final claim F:
//
//	F > D:  agent payout = D - alpha*(F-D), aggregator pays F + alpha*(F-D)
//	F <= D: both sides settle on the midpoint (D+F)/2
//
// The asymmetric penalty makes overreaching strictly worse for the agent
// and strictly more expensive for the aggregator than agreement would have
// been. Dollar amounts are fractions of the total panel cost; since the
// aggregator-pays column can sum beyond 100, aggregator earnings can go
// negative.
func ComputeSettlement(sheet *BidSheet, dec *CounterDecision, finals []FinalClaim, alpha float64) *SettlementReport {
	total := sheet.TotalPanelCost()
	report := &SettlementReport{TotalPanelCost: total}

	for _, f := range finals {
		d := dec.Internal[f.Agent.ID]
		var payout, pays float64
		if f.Claim > d {
			over := f.Claim - d
			payout = d - alpha*over
			pays = f.Claim + alpha*over
		} else {
			payout = (d + f.Claim) / 2
			pays = payout
		}

		cost := sheet.cost(f.Agent.ID)
		amount := payout / 100 * total
		report.Settlements = append(report.Settlements, Settlement{
			AgentID:        f.Agent.ID,
			PayoutScore:    payout,
			AggregatorPays: pays,
			PayoutAmount:   amount,
			Cost:           cost,
			Profit:         amount - cost,
		})
		report.TotalPaidScore += pays
	}

	report.AggregatorScore = 100 - report.TotalPaidScore
	report.AggregatorEarnings = total * report.AggregatorScore / 100
	return report
}
