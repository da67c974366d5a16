package service

import (
	"fmt"
	"math"

	"checkpost/pkg/model"
)

func ratePct(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(total)) / 10
}

// completeSummary fills the derived rates and insight sentences of a summary
// holding raw counts.
func completeSummary(s *model.Summary) {
	s.ArrestRate = ratePct(s.Arrests, s.Total)
	s.SearchRate = ratePct(s.Searches, s.Total)
	s.DrugRate = ratePct(s.DrugRelated, s.Total)
	s.HighRiskRate = ratePct(s.HighRisk, s.Total)
	if s.AvgDriverAge != nil {
		avg := math.Round(*s.AvgDriverAge*10) / 10
		s.AvgDriverAge = &avg
	}
	s.Insights = buildInsights(s)
}

func buildInsights(s *model.Summary) []string {
	insights := []string{}
	if s.Total == 0 {
		return insights
	}

	if s.TopGender != nil {
		insights = append(insights, fmt.Sprintf("Most stopped drivers are %s (%d stops)", s.TopGender.Value, s.TopGender.Count))
	}
	insights = append(insights, fmt.Sprintf("Drug-related stops: %.1f%% of filtered results", s.DrugRate))
	if s.TopStopDuration != nil {
		insights = append(insights, fmt.Sprintf("Most common stop duration: %s", s.TopStopDuration.Value))
	}
	if s.TopOutcome != nil {
		insights = append(insights, fmt.Sprintf("Most common outcome: %s", s.TopOutcome.Value))
	}
	if s.HighRisk > 0 {
		insights = append(insights, fmt.Sprintf("High-risk stops (searched & arrested): %d (%.1f%%)", s.HighRisk, s.HighRiskRate))
	}
	return insights
}
