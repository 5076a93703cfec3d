package compare

import "github.com/Fanfaster01/nota-debito-app-sub000/internal"

// ComputeStats aggregates a finished run's results. minSpreadPct is
// the floor under which a spread is treated as noise rather than a
// saving opportunity.
func ComputeStats(run internal.ComparisonRun, results []internal.ComparisonResult, minSpreadPct float64) internal.ComparisonStats {
	stats := internal.ComparisonStats{
		TotalCompared: run.TotalCompared,
		Matched:       run.Matched,
	}

	wins := map[string]int{}
	spreadSum := 0.0
	for _, r := range results {
		spreadSum += r.SpreadPct
		if r.SpreadPct > minSpreadPct {
			stats.WithSavings++
		}
		if r.Anomaly != nil {
			stats.Anomalies++
		}
		wins[r.Best.SupplierName]++
	}

	if len(results) > 0 {
		stats.AvgSpreadPct = spreadSum / float64(len(results))
	}

	bestCount := 0
	for supplier, n := range wins {
		if n > bestCount {
			stats.BestSupplier, bestCount = supplier, n
		}
	}
	if len(results) > 0 && bestCount > 0 {
		stats.BestSupplierShare = float64(bestCount) / float64(len(results))
	}
	return stats
}
