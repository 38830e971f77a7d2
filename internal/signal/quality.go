package signal

import "github.com/rs/zerolog/log"

// Grade thresholds. Scores at or above each cut receive the grade.
const (
	institutionalCut = 0.90
	professionalCut  = 0.75
	standardCut      = 0.70
)

// QualityFilter grades candidate signals and drops those below the
// acceptance threshold.
type QualityFilter struct {
	accept float64
}

// NewQualityFilter builds a filter with the given acceptance threshold.
// Thresholds outside (0,1] fall back to the standard cut.
func NewQualityFilter(acceptThreshold float64) *QualityFilter {
	if acceptThreshold <= 0 || acceptThreshold > 1 {
		acceptThreshold = standardCut
	}
	return &QualityFilter{accept: acceptThreshold}
}

// GradeFor maps a quality score to its grade bucket.
func GradeFor(score float64) Grade {
	switch {
	case score >= institutionalCut:
		return GradeInstitutional
	case score >= professionalCut:
		return GradeProfessional
	case score >= standardCut:
		return GradeStandard
	default:
		return GradeRejected
	}
}

// Apply stamps the grade on the candidate and returns it, or nil when
// the candidate grades rejected or scores below the acceptance
// threshold. Rejection is not an error.
func (f *QualityFilter) Apply(sig *Signal) *Signal {
	if sig == nil {
		return nil
	}
	grade := GradeFor(sig.Quality)
	if grade == GradeRejected || sig.Quality < f.accept {
		log.Debug().
			Str("symbol", sig.Symbol).
			Float64("score", sig.Quality).
			Msg("signal rejected by quality filter")
		return nil
	}
	sig.Grade = grade
	return sig
}
