package domain

import (
	"sort"
	"strings"
	"time"
)

// EntityType 是可能发生冲突的共享实体种类。
type EntityType string

const (
	EntityTrip     EntityType = "trip"
	EntityActivity EntityType = "activity"
	EntityComment  EntityType = "comment"
)

// ConflictType 描述冲突的来源。
type ConflictType string

const (
	ConflictEdit             ConflictType = "edit_conflict"
	ConflictConcurrentUpdate ConflictType = "concurrent_update"
	ConflictVersionMismatch  ConflictType = "version_mismatch"
)

// ResolutionKind 记录冲突最终是如何解决的。
type ResolutionKind string

const (
	ResolutionMerge    ResolutionKind = "merge"
	ResolutionOverride ResolutionKind = "override"
	ResolutionManual   ResolutionKind = "manual"
)

// Strategy 是把冲突转换为解决结果的策略名。
type Strategy string

const (
	StrategyLastWriteWins  Strategy = "last-write-wins"
	StrategyFirstWriteWins Strategy = "first-write-wins"
	StrategyManualMerge    Strategy = "manual-merge"
	StrategyUserChoice     Strategy = "user-choice"
)

// Known reports whether s names one of the supported strategies.
func (s Strategy) Known() bool {
	switch s {
	case StrategyLastWriteWins, StrategyFirstWriteWins, StrategyManualMerge, StrategyUserChoice:
		return true
	}
	return false
}

// ConflictEvent 是检测到的一次针对共享实体的并发修改分歧。
type ConflictEvent struct {
	ID            string         `json:"id"`
	Type          ConflictType   `json:"type"`
	TripID        string         `json:"tripId"`
	EntityType    EntityType     `json:"entityType"`
	EntityID      string         `json:"entityId"`
	UserID        string         `json:"userId"`
	UserName      string         `json:"userName"`
	Timestamp     time.Time      `json:"timestamp"`
	Changes       Fields         `json:"changes"`
	ConflictsWith []string       `json:"conflictsWith"`
	Resolved      bool           `json:"resolved"`
	Resolution    ResolutionKind `json:"resolution,omitempty"`
	ResolvedBy    string         `json:"resolvedBy,omitempty"`
	ResolvedAt    *time.Time     `json:"resolvedAt,omitempty"`
}

// Fingerprint identifies the cluster a conflict was built from, independent of its generated id.
// Two detections of the same cluster produce the same fingerprint.
func (c ConflictEvent) Fingerprint() string {
	others := append([]string(nil), c.ConflictsWith...)
	sort.Strings(others)
	var b strings.Builder
	b.WriteString(string(c.EntityType))
	b.WriteByte(':')
	b.WriteString(c.EntityID)
	b.WriteByte(':')
	b.WriteString(c.UserID)
	b.WriteByte(':')
	b.WriteString(c.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte(':')
	b.WriteString(strings.Join(others, ","))
	return b.String()
}

// UserInput 是调用方在需要人工介入时补充的数据。
type UserInput struct {
	Winner             string `json:"winner,omitempty"`
	ConflictingChanges Fields `json:"conflictingChanges,omitempty"`
}

// ConflictResolution 是一次解决尝试的结果。
// RequiresUserInput 为 true 时，调用方需要带上 UserInput 再调用一次。
type ConflictResolution struct {
	Strategy          Strategy `json:"strategy"`
	Winner            string   `json:"winner,omitempty"`
	MergedChanges     Fields   `json:"mergedChanges,omitempty"`
	RequiresUserInput bool     `json:"requiresUserInput"`
	AlreadyResolved   bool     `json:"alreadyResolved,omitempty"`
}

// Severity 是冲突的严重程度。
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConflictSummary 是面向用户的冲突描述。
type ConflictSummary struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AffectedUsers     []string `json:"affectedUsers"`
	RecommendedAction string   `json:"recommendedAction"`
}
