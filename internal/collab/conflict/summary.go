package conflict

import (
	"fmt"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// GenerateSummary 生成面向用户的冲突描述，文案按实体类型区分。
func GenerateSummary(c domain.ConflictEvent) domain.ConflictSummary {
	affected := make([]string, 0, len(c.ConflictsWith)+1)
	affected = append(affected, c.UserID)
	affected = append(affected, c.ConflictsWith...)

	actor := c.UserName
	if actor == "" {
		actor = c.UserID
	}
	others := othersPhrase(len(c.ConflictsWith))

	var s domain.ConflictSummary
	switch c.EntityType {
	case domain.EntityTrip:
		s.Title = "Trip details changed by several people"
		s.Description = fmt.Sprintf("%s and %s edited the trip details at nearly the same time.", actor, others)
		s.RecommendedAction = "Review the trip details and keep the version everyone agrees on."
	case domain.EntityActivity:
		s.Title = "Conflicting activity edits"
		s.Description = fmt.Sprintf("%s and %s edited the same activity at nearly the same time.", actor, others)
		s.RecommendedAction = "Compare both versions and merge the fields you want to keep."
	case domain.EntityComment:
		s.Title = "Overlapping comment changes"
		s.Description = fmt.Sprintf("%s and %s changed the same comment at nearly the same time.", actor, others)
		s.RecommendedAction = "The earliest comment is kept. Re-post anything that is missing."
	default:
		s.Title = "Concurrent changes detected"
		s.Description = fmt.Sprintf("%s and %s made changes at nearly the same time.", actor, others)
		s.RecommendedAction = "Review the changes before continuing."
	}
	s.AffectedUsers = affected
	return s
}

func othersPhrase(n int) string {
	if n == 1 {
		return "1 other collaborator"
	}
	return fmt.Sprintf("%d other collaborators", n)
}

// Severity 按 (冲突用户数 + 1) × (行程为 2，否则为 1) 打分：>=4 为 high，>=2 为 medium。
func Severity(c domain.ConflictEvent) domain.Severity {
	score := len(c.ConflictsWith) + 1
	if c.EntityType == domain.EntityTrip {
		score *= 2
	}
	switch {
	case score >= 4:
		return domain.SeverityHigh
	case score >= 2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
