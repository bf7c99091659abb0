package badge

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/schoolplay/progression/internal/domain/metrics"
	"github.com/schoolplay/progression/internal/domain/shared"
)

// Kind names the metric a criterion compares against.
type Kind string

const (
	KindPoints     Kind = "points"
	KindLevel      Kind = "level"
	KindPlays      Kind = "plays"
	KindCompleted  Kind = "completed"
	KindStreak     Kind = "streak"
	KindActiveDays Kind = "active_days"
	KindActivities Kind = "activities"
	KindTimeHours  Kind = "time_hours"
	KindAvgPoints  Kind = "avg_points"
	KindBestScore  Kind = "best_score"
	KindVeteran    Kind = "veteran"
)

// Kinds lists every criterion kind in a stable order.
var Kinds = []Kind{
	KindPoints, KindLevel, KindPlays, KindCompleted, KindStreak, KindActiveDays,
	KindActivities, KindTimeHours, KindAvgPoints, KindBestScore, KindVeteran,
}

func kindList() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// typeTokens maps every accepted type token to its kind. Badge definitions
// imported from the legacy platform use the Spanish names.
var typeTokens = map[string]Kind{
	"points":      KindPoints,
	"level":       KindLevel,
	"plays":       KindPlays,
	"completed":   KindCompleted,
	"streak":      KindStreak,
	"active_days": KindActiveDays,
	"activities":  KindActivities,
	"time_hours":  KindTimeHours,
	"avg_points":  KindAvgPoints,
	"best_score":  KindBestScore,
	"veteran":     KindVeteran,

	"puntos":        KindPoints,
	"nivel":         KindLevel,
	"partidas":      KindPlays,
	"completados":   KindCompleted,
	"racha":         KindStreak,
	"dias_activos":  KindActiveDays,
	"actividades":   KindActivities,
	"horas":         KindTimeHours,
	"promedio":      KindAvgPoints,
	"mejor_puntaje": KindBestScore,
	"veterano":      KindVeteran,
}

// Plain decimal: digits with an optional fractional part.
var valuePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Criterion is a parsed "type:value" unlock rule. The original type token and
// value text are kept so that String reproduces the input byte for byte.
type Criterion struct {
	Kind      Kind
	Threshold float64

	token string
	value string
}

// ParseCriterion parses and validates a criterion string.
func ParseCriterion(s string) (Criterion, error) {
	if s == "" {
		return Criterion{}, invalidCriterion(s, "criterion is empty")
	}
	if strings.IndexFunc(s, isSpace) >= 0 {
		return Criterion{}, invalidCriterion(s, "criterion must not contain whitespace")
	}
	if n := strings.Count(s, ":"); n != 1 {
		return Criterion{}, invalidCriterion(s, fmt.Sprintf("expected exactly one ':' but found %d", n))
	}

	token, value, _ := strings.Cut(s, ":")
	kind, ok := typeTokens[token]
	if !ok {
		return Criterion{}, invalidCriterion(s, fmt.Sprintf("unknown criterion type %q, expected one of %s", token, kindList()))
	}
	if !valuePattern.MatchString(value) {
		return Criterion{}, invalidCriterion(s, fmt.Sprintf("value %q is not a non-negative number", value))
	}
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
		return Criterion{}, invalidCriterion(s, fmt.Sprintf("value %q is out of range", value))
	}

	return Criterion{Kind: kind, Threshold: threshold, token: token, value: value}, nil
}

// MustParseCriterion is ParseCriterion for literals known to be valid.
func MustParseCriterion(s string) Criterion {
	c, err := ParseCriterion(s)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCriterion builds a criterion in canonical form.
func NewCriterion(kind Kind, threshold float64) (Criterion, error) {
	return ParseCriterion(string(kind) + ":" + strconv.FormatFloat(threshold, 'f', -1, 64))
}

func invalidCriterion(s, reason string) error {
	return shared.Invalid(shared.ErrInvalidCriterion, "ParseCriterion", fmt.Sprintf("%q: %s", s, reason))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' || r == 0x85 || r == 0xA0
}

// String returns the criterion exactly as it was parsed.
func (c Criterion) String() string {
	if c.token == "" {
		return ""
	}
	return c.token + ":" + c.value
}

// IsZero reports whether c was never parsed.
func (c Criterion) IsZero() bool {
	return c.token == ""
}

// Equal compares the serialized forms.
func (c Criterion) Equal(other Criterion) bool {
	return c.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (c Criterion) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Criterion) UnmarshalText(text []byte) error {
	parsed, err := ParseCriterion(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Metric extracts the value this criterion compares. ok is false when the
// metric does not exist for the student, which only happens for level
// criteria when no level is held.
func (c Criterion) Metric(m metrics.StudentMetrics) (value float64, ok bool) {
	switch c.Kind {
	case KindPoints:
		return float64(m.TotalPoints), true
	case KindLevel:
		return float64(m.HighestLevelPoints), m.HasLevel
	case KindPlays:
		return float64(m.TotalPlays), true
	case KindCompleted:
		return float64(m.CompletedPlays), true
	case KindStreak:
		return float64(m.CurrentStreakDays), true
	case KindActiveDays:
		return float64(m.ActiveDays), true
	case KindActivities:
		return float64(m.ActivitiesCompleted), true
	case KindTimeHours:
		return m.SessionHours(), true
	case KindAvgPoints:
		return m.AvgPlayScore, true
	case KindBestScore:
		return m.BestPlayScore, true
	case KindVeteran:
		return float64(m.AccountAgeDays), true
	}
	return 0, false
}

// Evaluate reports whether the metrics satisfy the criterion.
func (c Criterion) Evaluate(m metrics.StudentMetrics) bool {
	v, ok := c.Metric(m)
	return ok && v >= c.Threshold
}

// Progress returns how close the student is to the criterion, 0 to 100.
func (c Criterion) Progress(m metrics.StudentMetrics) int {
	if c.Evaluate(m) {
		return 100
	}
	v, ok := c.Metric(m)
	if !ok || v <= 0 || c.Threshold <= 0 {
		return 0
	}
	pct := int(math.Floor(v / c.Threshold * 100))
	return min(max(pct, 0), 99)
}
