package queue

import (
	"context"
	"time"

	"clinicq/ticket-service/internal/models"
	"clinicq/ticket-service/internal/store"
)

type ServicePointStats struct {
	ServiceID   string         `json:"service_id"`
	ServiceCode string         `json:"service_code"`
	ServiceName string         `json:"service_name"`
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
}

type Stats struct {
	Total          int                 `json:"total"`
	ByStatus       map[string]int      `json:"by_status"`
	ByServicePoint []ServicePointStats `json:"by_service_point"`
}

// StatsAggregator computes per-status and per-service-point counts over a
// date range. Pure read side: recomputed from the store on every call, no
// caching.
type StatsAggregator struct {
	tickets store.TicketStore
}

func NewStatsAggregator(tickets store.TicketStore) *StatsAggregator {
	return &StatsAggregator{tickets: tickets}
}

func (a *StatsAggregator) Counts(ctx context.Context, serviceID string, from, to time.Time) (Stats, error) {
	rows, err := a.tickets.TicketCounts(ctx, serviceID, from, to)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByStatus: zeroStatusCounts()}
	index := make(map[string]int)
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByStatus[row.Status] += row.Count

		i, ok := index[row.ServiceID]
		if !ok {
			stats.ByServicePoint = append(stats.ByServicePoint, ServicePointStats{
				ServiceID:   row.ServiceID,
				ServiceCode: row.ServiceCode,
				ServiceName: row.ServiceName,
				ByStatus:    zeroStatusCounts(),
			})
			i = len(stats.ByServicePoint) - 1
			index[row.ServiceID] = i
		}
		stats.ByServicePoint[i].Total += row.Count
		stats.ByServicePoint[i].ByStatus[row.Status] += row.Count
	}
	return stats, nil
}

// zeroStatusCounts seeds every status at zero so display screens always see
// the full breakdown.
func zeroStatusCounts() map[string]int {
	counts := make(map[string]int, len(models.Statuses()))
	for _, status := range models.Statuses() {
		counts[status] = 0
	}
	return counts
}
