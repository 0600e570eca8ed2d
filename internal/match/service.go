package match

import (
	"context"
	"sort"
	"time"

	"github.com/jailfriend/go-call-infra/internal/profile"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/pkg/errors"
)

// Candidate is one matchable counterpart at the evaluation instant.
// Candidates are recomputed per request and never persisted.
type Candidate struct {
	UserID string
	// Remaining is how long until the candidate's availability window
	// closes. Candidates closer to becoming unavailable sort first so
	// urgent matches are preferred.
	Remaining time.Duration
}

// Service computes the set of currently-available counterparts for a
// requesting user.
type Service struct {
	profiles      profile.Store
	maxCandidates int
}

func NewService(profiles profile.Store, maxCandidates int) *Service {
	return &Service{
		profiles:      profiles,
		maxCandidates: maxCandidates,
	}
}

// FindCandidates returns the counterparts available at the given instant,
// ordered by tightest remaining availability window. The result is a finite
// snapshot; callers re-invoke for a fresh one. An empty result is a valid
// outcome, not an error.
func (s *Service) FindCandidates(ctx context.Context, requesterID string, at time.Time) ([]Candidate, error) {
	log := util.LogFromContext(ctx)

	profiles, err := s.profiles.ListMatchable(ctx, requesterID, s.maxCandidates)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list matchable profiles")
	}

	candidates := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		if p.Empty() {
			log.Debug().Str("user_id", p.UserID).Msg("Skipping empty profile")
			continue
		}

		loc, err := p.Location()
		if err != nil {
			// A broken timezone excludes the candidate, never fails the match.
			log.Debug().Err(err).Str("user_id", p.UserID).Str("timezone", p.Timezone).Msg("Skipping profile with unparseable timezone")
			continue
		}

		local := at.In(loc)
		clock := profile.At(local)

		if !p.Contains(clock) {
			continue
		}
		if !p.WorkingOn(local.Weekday(), clock) {
			continue
		}

		candidates = append(candidates, Candidate{
			UserID:    p.UserID,
			Remaining: p.RemainingWindow(clock),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Remaining < candidates[j].Remaining
	})

	return candidates, nil
}
