package engine

// ScoringService implements C7: a pure function of a finalized phraseset
// plus its votes. It holds no state and may be called repeatedly — the
// Vote Service is the only caller that ever commits the derived
// transactions, and only once, at finalization (spec.md §4.7).
type ScoringService struct{}

func NewScoringService() *ScoringService { return &ScoringService{} }

const (
	pointsPerOriginalVote = 1
	pointsPerCopyVote     = 2
	correctVotePayout     = 5
)

// CalculatePayouts returns one PayoutBreakdown per contributor role, in a
// stable order (original, copy1, copy2).
func (s *ScoringService) CalculatePayouts(ps *Phraseset, votes []*Vote, contributors Contributors) []PayoutBreakdown {
	var originalVotes, copy1Votes, copy2Votes, correctVotes int
	for _, v := range votes {
		switch normalize(v.VotedPhrase) {
		case normalize(ps.Original):
			originalVotes++
		case normalize(ps.Copy1):
			copy1Votes++
		case normalize(ps.Copy2):
			copy2Votes++
		}
		if v.Correct {
			correctVotes++
		}
	}

	originalPoints := int64(originalVotes * pointsPerOriginalVote)
	copy1Points := int64(copy1Votes * pointsPerCopyVote)
	copy2Points := int64(copy2Votes * pointsPerCopyVote)
	totalPoints := originalPoints + copy1Points + copy2Points

	prizePool := ps.TotalPool - int64(correctVotes*correctVotePayout)
	if prizePool < 0 {
		prizePool = 0
	}

	breakdowns := []PayoutBreakdown{
		{Role: "original", PlayerID: contributors.PromptPlayerID, Phrase: ps.Original, Points: originalPoints},
		{Role: "copy1", PlayerID: contributors.Copy1PlayerID, Phrase: ps.Copy1, Points: copy1Points},
		{Role: "copy2", PlayerID: contributors.Copy2PlayerID, Phrase: ps.Copy2, Points: copy2Points},
	}

	// Both splits below floor-divide; the undistributed remainder stays with
	// the system and is at most 2 dollars per phraseset (three floored shares).
	if totalPoints == 0 {
		share := prizePool / 3
		for i := range breakdowns {
			breakdowns[i].Payout = share
		}
		return breakdowns
	}

	for i := range breakdowns {
		breakdowns[i].Payout = (prizePool * breakdowns[i].Points) / totalPoints
	}
	return breakdowns
}
