package model

// GradingScheme names a fixed set of grade labels with default boundaries.
type GradingScheme string

const (
	SchemeGCSE   GradingScheme = "GCSE (9-1)"
	SchemeALevel GradingScheme = "A-Level (A*-U)"
)

// Schemes lists the supported grading schemes in display order.
var Schemes = []GradingScheme{SchemeGCSE, SchemeALevel}

var schemeDefaults = map[GradingScheme]Boundaries{
	SchemeGCSE: {
		{"9", 90}, {"8", 85}, {"7", 75}, {"6", 70}, {"5", 65},
		{"4", 60}, {"3", 50}, {"2", 40}, {"1", 30}, {"U", 0},
	},
	SchemeALevel: {
		{"A*", 90}, {"A", 80}, {"B", 70}, {"C", 60}, {"D", 50}, {"E", 40}, {"U", 0},
	},
}

// Valid reports whether s is a known scheme.
func (s GradingScheme) Valid() bool {
	_, ok := schemeDefaults[s]
	return ok
}

// DefaultBoundaries returns a fresh copy of the scheme's default table.
// Unknown schemes return nil.
func (s GradingScheme) DefaultBoundaries() Boundaries {
	def, ok := schemeDefaults[s]
	if !ok {
		return nil
	}
	out := make(Boundaries, len(def))
	copy(out, def)
	return out
}

// Grades returns the scheme's grade labels, highest first.
func (s GradingScheme) Grades() []string {
	def := schemeDefaults[s]
	grades := make([]string, 0, len(def))
	for _, b := range def {
		grades = append(grades, b.Grade)
	}
	return grades
}

// GradeBoundary is the minimum percentage required for a grade.
type GradeBoundary struct {
	Grade       string `json:"grade"`
	MinimumMark int    `json:"minimum_mark"`
}

// Boundaries is an ordered grade-boundary table.
type Boundaries []GradeBoundary

// IsDescending reports whether minimum marks never increase down the table.
// Tables are accepted either way; this only feeds a UI notice.
func (b Boundaries) IsDescending() bool {
	for i := 1; i < len(b); i++ {
		if b[i].MinimumMark > b[i-1].MinimumMark {
			return false
		}
	}
	return true
}

// Clone returns a copy of b, preserving nil.
func (b Boundaries) Clone() Boundaries {
	if b == nil {
		return nil
	}
	out := make(Boundaries, len(b))
	copy(out, b)
	return out
}

// Category is the red/amber/green indicator for a percentage.
type Category string

const (
	CategoryGreen Category = "Green"
	CategoryAmber Category = "Amber"
	CategoryRed   Category = "Red"
)

// Lower bounds of each band, inclusive.
const (
	GreenThreshold = 75.0
	AmberThreshold = 50.0
)

// Classify maps a percentage onto its RAG band.
func Classify(percent float64) Category {
	switch {
	case percent >= GreenThreshold:
		return CategoryGreen
	case percent >= AmberThreshold:
		return CategoryAmber
	default:
		return CategoryRed
	}
}

// RGB is a fill colour.
type RGB struct{ R, G, B int }

// Report table shading.
var (
	FillHeader = RGB{200, 200, 200}
	FillTotal  = RGB{220, 220, 220}
)

// Fill returns the background shading for the category.
func (c Category) Fill() RGB {
	switch c {
	case CategoryGreen:
		return RGB{144, 238, 144}
	case CategoryAmber:
		return RGB{255, 223, 100}
	default:
		return RGB{255, 160, 160}
	}
}

// Percent returns 100 * marks / max. A non-positive max yields ErrInvalidQuestion.
func Percent(marks, max int) (float64, error) {
	if max <= 0 {
		return 0, ErrInvalidQuestion
	}
	return float64(marks) / float64(max) * 100, nil
}
