// Package search defines the query model, scoring, fusion, and pagination
// primitives behind the hybrid search engine.
package search

import (
	"fmt"

	"github.com/severstroy/matcat/domain/fault"
)

// Mode selects one of the four search strategies.
type Mode string

// Mode values.
const (
	ModeVector Mode = "vector"
	ModeSQL    Mode = "sql"
	ModeFuzzy  Mode = "fuzzy"
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string. An empty string defaults to hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeVector, ModeSQL, ModeFuzzy, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", fault.NewValidation(fmt.Sprintf("unknown search mode %q", s), map[string]string{
			"mode": "must be one of vector, sql, fuzzy, hybrid",
		})
	}
}

// Field weights shared by the sql and fuzzy scorers.
const (
	WeightName        = 0.4
	WeightDescription = 0.3
	WeightUseCategory = 0.2
	WeightSKU         = 0.1
)

// Default similarity thresholds per mode.
const (
	DefaultVectorThreshold = 0.0
	DefaultFuzzyThreshold  = 0.6
)

// Hybrid fusion weights.
const (
	HybridVectorWeight = 0.6
	HybridSQLWeight    = 0.4
	// SingleSideScale dampens a record found by only one backend.
	SingleSideScale = 0.9
)
