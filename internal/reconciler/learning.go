package reconciler

import (
	"context"
	"math"
	"time"

	"receivables-reconciler/internal/matcher"
	"receivables-reconciler/internal/store"
	"receivables-reconciler/pkg/logger"
)

// learningFeatureWeights blends a reduced set of the heuristic factors into
// the score the logistic transform is applied to: value and date distance,
// text similarity, channel match, customer recurrence and the seasonal
// pattern. The weights are fixed; nothing is fitted. Confirmed links only
// gate the variant on and feed the history aggregates the factors already
// read.
var learningFeatureWeights = struct {
	value, date, text, channel, recurrence, seasonal float64
}{
	value:      0.30,
	date:       0.25,
	text:       0.20,
	channel:    0.10,
	recurrence: 0.10,
	seasonal:   0.05,
}

// LearningScorer is the adaptive acceptance layer. Below the confirmed-link
// gate it is inert and the engine uses the deterministic path unchanged.
// Above the gate it re-ranks candidates by a logistic probability over a
// six-feature blend and accepts matches at or beyond its own threshold.
type LearningScorer struct {
	config matcher.LearningConfig
	log    logger.Logger
}

// NewLearningScorer builds the variant from the learning knobs.
func NewLearningScorer(config matcher.LearningConfig) *LearningScorer {
	return &LearningScorer{
		config: config,
		log:    logger.GetGlobalLogger().WithComponent("learning"),
	}
}

// Gate decides whether enough manually confirmed links exist to trust the
// variant, and logs the decision once per run.
func (ls *LearningScorer) Gate(ctx context.Context, st store.Store) (bool, error) {
	count, err := st.CountManuallyConfirmedLinks(ctx)
	if err != nil {
		return false, err
	}

	enabled := count >= ls.config.MinConfirmedLinks
	ls.log.WithFields(logger.Fields{
		"confirmed_links": count,
		"gate":            ls.config.MinConfirmedLinks,
		"enabled":         enabled,
	}).Debug("Learning gate evaluated")
	return enabled, nil
}

// TrainingPool loads the confirmed links the history aggregates are built
// from: the most recent examples inside the lookback window, capped at the
// configured pool size.
func (ls *LearningScorer) TrainingPool(ctx context.Context, st store.Store, now time.Time) ([]*store.ConfirmedLink, error) {
	cutoff := now.AddDate(0, 0, -ls.config.LookbackDays)
	return st.ListConfirmedLinks(ctx, cutoff, ls.config.MaxTrainingExamples)
}

// Probability maps a heuristic match score onto (0, 1) via the logistic
// transform 1/(1+e^(−k·(s−0.5))) over the blended feature score s.
func (ls *LearningScorer) Probability(score matcher.MatchScore) float64 {
	f := score.Factors
	s := (f.ValueProximity*learningFeatureWeights.value +
		f.DateProximity*learningFeatureWeights.date +
		f.TextSimilarity*learningFeatureWeights.text +
		f.ChannelMatch*learningFeatureWeights.channel +
		f.CustomerRecurrence*learningFeatureWeights.recurrence +
		f.SeasonalPattern*learningFeatureWeights.seasonal) / 100

	return 1 / (1 + math.Exp(-ls.config.Sharpness*(s-0.5)))
}

// Accept reports whether the variant takes the match.
func (ls *LearningScorer) Accept(score matcher.MatchScore) bool {
	return ls.Probability(score) >= ls.config.AcceptThreshold
}

// Best picks the acceptable candidate with the highest probability. Ties
// break toward the smaller date difference, then input order, mirroring the
// deterministic path.
func (ls *LearningScorer) Best(scores []matcher.MatchScore) (matcher.MatchScore, int, bool) {
	var best matcher.MatchScore
	bestP := 0.0
	accepted := 0
	found := false

	for _, score := range scores {
		p := ls.Probability(score)
		if p < ls.config.AcceptThreshold {
			continue
		}
		accepted++
		if !found || p > bestP ||
			(p == bestP && score.DateDiffDays < best.DateDiffDays) {
			best = score
			bestP = p
			found = true
		}
	}

	return best, accepted, found
}
