package feature

import (
	"context"
	"sort"
	"time"
)

// DateRange bounds an analytics scan. A zero bound is open on that side.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DailyCount is the number of usage events observed on one calendar day (UTC).
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// VariantStats aggregates usage for one variant of one experiment.
//
// ConversionRate is a placeholder pending a conversion-event source: usage
// records capture exposure, not conversion, so the rate stays zero until a
// conversion signal is wired in.
type VariantStats struct {
	Variant        string  `json:"variant"`
	Usages         int64   `json:"usages"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ExperimentPerformance groups per-variant usage under one experiment.
type ExperimentPerformance struct {
	ExperimentID string         `json:"experiment_id"`
	Variants     []VariantStats `json:"variants"`
}

// FlagReport is the usage summary for one flag over an optional date range.
type FlagReport struct {
	FlagID             string                  `json:"flag_id"`
	Key                string                  `json:"key"`
	TotalUsages        int64                   `json:"total_usages"`
	UniqueUsers        int64                   `json:"unique_users"`
	UsageOverTime      []DailyCount            `json:"usage_over_time"`
	VariantPerformance []ExperimentPerformance `json:"variant_performance"`
}

// VariantShare is one variant's slice of an experiment's participants.
type VariantShare struct {
	Variant    string  `json:"variant"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ExperimentReport summarizes participation in one experiment.
type ExperimentReport struct {
	ExperimentID        string         `json:"experiment_id"`
	TotalParticipants   int64          `json:"total_participants"`
	VariantDistribution []VariantShare `json:"variant_distribution"`
}

// AnalyticsStore is the read port the aggregator scans against. It extends
// the evaluation Store with experiment lookup so a report for a missing
// experiment surfaces as ErrExperimentNotFound instead of an empty result.
type AnalyticsStore interface {
	Store
	GetExperiment(ctx context.Context, experimentID string) (*Experiment, error)
}

// Analytics builds usage and experiment reports from recorded events. Scans
// are read-only and may run concurrently with ongoing recording; results are
// an eventually consistent snapshot.
type Analytics struct {
	store AnalyticsStore
	usage UsageStorage
}

// NewAnalytics creates an aggregator over the given ports.
func NewAnalytics(store AnalyticsStore, usage UsageStorage) (*Analytics, error) {
	if store == nil || usage == nil {
		return nil, ErrStorageNotInitialized
	}
	return &Analytics{store: store, usage: usage}, nil
}

// FlagReport scans usage events for the flag identified by key, optionally
// bounded by dateRange, and aggregates totals, distinct users, per-day counts
// in ascending date order, and per-experiment variant usage.
func (a *Analytics) FlagReport(ctx context.Context, key string, dateRange *DateRange) (*FlagReport, error) {
	snap, err := a.store.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	criteria := UsageCriteria{FlagID: snap.Flag.ID}
	if dateRange != nil {
		criteria.From = dateRange.Start
		criteria.To = dateRange.End
	}
	records, err := a.usage.Query(ctx, criteria)
	if err != nil {
		return nil, err
	}

	report := &FlagReport{
		FlagID:      snap.Flag.ID,
		Key:         snap.Flag.Key,
		TotalUsages: int64(len(records)),
	}

	users := make(map[string]struct{})
	daily := make(map[string]int64)
	perExperiment := make(map[string]map[string]int64)
	for _, rec := range records {
		users[rec.UserID] = struct{}{}
		daily[rec.CreatedAt.UTC().Format(time.DateOnly)]++
		if rec.ExperimentID != "" && rec.Variant != "" {
			if perExperiment[rec.ExperimentID] == nil {
				perExperiment[rec.ExperimentID] = make(map[string]int64)
			}
			perExperiment[rec.ExperimentID][rec.Variant]++
		}
	}
	report.UniqueUsers = int64(len(users))

	report.UsageOverTime = make([]DailyCount, 0, len(daily))
	for date, count := range daily {
		report.UsageOverTime = append(report.UsageOverTime, DailyCount{Date: date, Count: count})
	}
	sort.Slice(report.UsageOverTime, func(i, j int) bool {
		return report.UsageOverTime[i].Date < report.UsageOverTime[j].Date
	})

	expIDs := make([]string, 0, len(perExperiment))
	for id := range perExperiment {
		expIDs = append(expIDs, id)
	}
	sort.Strings(expIDs)
	for _, id := range expIDs {
		perf := ExperimentPerformance{ExperimentID: id}
		variants := make([]string, 0, len(perExperiment[id]))
		for v := range perExperiment[id] {
			variants = append(variants, v)
		}
		sort.Strings(variants)
		for _, v := range variants {
			perf.Variants = append(perf.Variants, VariantStats{Variant: v, Usages: perExperiment[id][v]})
		}
		report.VariantPerformance = append(report.VariantPerformance, perf)
	}

	return report, nil
}

// ExperimentReport counts participants of one experiment and the share each
// variant received. Unknown experiment IDs surface as ErrExperimentNotFound.
func (a *Analytics) ExperimentReport(ctx context.Context, experimentID string) (*ExperimentReport, error) {
	if experimentID == "" {
		return nil, ErrExperimentNotFound
	}
	if _, err := a.store.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}

	records, err := a.usage.Query(ctx, UsageCriteria{ExperimentID: experimentID})
	if err != nil {
		return nil, err
	}

	report := &ExperimentReport{
		ExperimentID:      experimentID,
		TotalParticipants: int64(len(records)),
	}

	counts := make(map[string]int64)
	for _, rec := range records {
		counts[rec.Variant]++
	}
	variants := make([]string, 0, len(counts))
	for v := range counts {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	for _, v := range variants {
		share := VariantShare{Variant: v, Count: counts[v]}
		if report.TotalParticipants > 0 {
			share.Percentage = float64(counts[v]) / float64(report.TotalParticipants) * 100
		}
		report.VariantDistribution = append(report.VariantDistribution, share)
	}

	return report, nil
}
