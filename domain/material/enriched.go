package material

// NoColor is the placeholder used in the combined-embedding text when a
// material has no normalized color.
const NoColor = "без_цвета"

// Parsed is the AI parser's view of a raw material: extracted unit, the
// coefficient relating it to the base unit, an optional color, and the
// three field embeddings. An empty color means the parser found none;
// it never guesses.
type Parsed struct {
	parsedUnit      string
	unitCoefficient float64
	color           string
	embeddingName   []float64
	embeddingUnit   []float64
	embeddingColor  []float64
}

// NewParsed creates a Parsed result.
func NewParsed(parsedUnit string, unitCoefficient float64, color string, embeddingName, embeddingUnit, embeddingColor []float64) Parsed {
	return Parsed{
		parsedUnit:      parsedUnit,
		unitCoefficient: unitCoefficient,
		color:           color,
		embeddingName:   copyVector(embeddingName),
		embeddingUnit:   copyVector(embeddingUnit),
		embeddingColor:  copyVector(embeddingColor),
	}
}

// ParsedUnit returns the unit string the parser extracted.
func (p Parsed) ParsedUnit() string { return p.parsedUnit }

// UnitCoefficient returns the multiplier to the base unit (>= 0).
func (p Parsed) UnitCoefficient() float64 { return p.unitCoefficient }

// Color returns the extracted color, empty when none was found.
func (p Parsed) Color() string { return p.color }

// HasColor reports whether the parser extracted a color.
func (p Parsed) HasColor() bool { return p.color != "" }

// EmbeddingName returns the name embedding.
func (p Parsed) EmbeddingName() []float64 { return copyVector(p.embeddingName) }

// EmbeddingUnit returns the unit embedding.
func (p Parsed) EmbeddingUnit() []float64 { return copyVector(p.embeddingUnit) }

// EmbeddingColor returns the color embedding, nil when no color was found.
func (p Parsed) EmbeddingColor() []float64 { return copyVector(p.embeddingColor) }

// Enriched is a Material extended with the normalized fields produced by
// the enrichment pipeline. The combined embedding derives deterministically
// from (name, normalized_unit, normalized_color or NoColor); changing any
// of the three requires regeneration.
type Enriched struct {
	Material
	parsedUnit        string
	unitCoefficient   float64
	color             string
	normalizedColor   string
	normalizedUnit    string
	embeddingCombined []float64
}

// NewEnriched assembles an Enriched material.
func NewEnriched(base Material, parsedUnit string, unitCoefficient float64, color, normalizedColor, normalizedUnit string, embeddingCombined []float64) Enriched {
	return Enriched{
		Material:          base,
		parsedUnit:        parsedUnit,
		unitCoefficient:   unitCoefficient,
		color:             color,
		normalizedColor:   normalizedColor,
		normalizedUnit:    normalizedUnit,
		embeddingCombined: copyVector(embeddingCombined),
	}
}

// ParsedUnit returns the raw parsed unit.
func (e Enriched) ParsedUnit() string { return e.parsedUnit }

// UnitCoefficient returns the parsed unit coefficient.
func (e Enriched) UnitCoefficient() float64 { return e.unitCoefficient }

// Color returns the raw extracted color, empty when none.
func (e Enriched) Color() string { return e.color }

// NormalizedColor returns the canonical color, empty when none.
func (e Enriched) NormalizedColor() string { return e.normalizedColor }

// NormalizedUnit returns the canonical unit.
func (e Enriched) NormalizedUnit() string { return e.normalizedUnit }

// EmbeddingCombined returns the combined embedding.
func (e Enriched) EmbeddingCombined() []float64 { return copyVector(e.embeddingCombined) }

// CombinedText returns the fixed concatenation the combined embedding is
// generated from.
func (e Enriched) CombinedText() string {
	return CombinedText(e.Name(), e.normalizedUnit, e.normalizedColor)
}

// CombinedText renders the canonical triple into the fixed embedding input
// format. An empty color falls back to NoColor.
func CombinedText(name, normalizedUnit, normalizedColor string) string {
	color := normalizedColor
	if color == "" {
		color = NoColor
	}
	return name + " | unit:" + normalizedUnit + " | color:" + color
}
