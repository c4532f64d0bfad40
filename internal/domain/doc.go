// Package domain models the per-(store, item, date) forecast line and the
// stage-delta ledger that every downstream report is reconstructed from.
//
// # History Window
//
// Each line carries four weeks of sales history, W1 (most recent) through W4
// (oldest), as (shipped, sold, shrink_ratio) triples, plus the same window
// aggregated at store level. Weekly values are nullable: the warehouse emits
// null when the item was not ranged that week. Nulls default to zero at the
// point of use; they are never allowed to propagate into arithmetic.
//
// Shrink is the fraction of shipped units not sold that week, the spoilage
// proxy for perishable retail:
//
//	shrink_ratio = (shipped - sold) / shipped
//
// # The Waterfall Invariant
//
// Every mutation of a line's order quantity goes through the ledger: a stage
// records a signed delta, a count, and a reason code, and the running
// quantity moves by exactly that delta. At all times
//
//	final_quantity == baseline_qty + sum(ledger deltas)
//
// holds to within 1e-6. The Baseline Estimator establishes baseline_qty as
// the waterfall's starting point and writes no ledger entry. Downstream
// reporting reconstructs starting volume -> final volume purely from these
// deltas; nothing is re-derived, so a stage that touched the quantity
// without its ledger entry would silently corrupt every report.
//
// Ledger stage tags are part of the export contract (they become flattened
// column names like decline_adj_qty) and must not be renamed without a
// schema migration downstream.
//
// # Batches
//
// Lines are processed in batches sharing (region_code, date_forecast,
// scenario). The per-line stages are order-dependent but independent across
// lines; the Store Consistency Pass and Weather Reduction Pass reallocate
// across all lines of a store and therefore need the whole batch
// materialized first. A batch never reads or writes lines outside itself.
//
// # Severity Scores
//
// Weather observations carry a 0-10 composite severity score with component
// severities (wind, precipitation, temperature) supplied by the weather
// collaborator. The banded category labels (mild through extreme) are
// derived here so every consumer maps scores the same way.
package domain
