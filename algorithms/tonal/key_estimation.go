package tonal

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-tempo/algorithms/chroma"
	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/stats"
)

// UnknownKey is reported when no key can be resolved
const UnknownKey = "Unknown"

// KeyMode is major or minor
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "Minor"
	}
	return "Major"
}

// KeyTemplate is a reference pitch class profile with its tonic on C
type KeyTemplate struct {
	Name    string
	Profile [12]float64
	IsMinor bool
}

// Mode returns the template's mode
func (kt KeyTemplate) Mode() KeyMode {
	if kt.IsMinor {
		return KeyModeMinor
	}
	return KeyModeMajor
}

var keyTemplates = []KeyTemplate{
	{Name: "Krumhansl-Schmuckler", Profile: [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}},
	{Name: "Krumhansl-Schmuckler", Profile: [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}, IsMinor: true},
	{Name: "Temperley", Profile: [12]float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0}},
	{Name: "Temperley", Profile: [12]float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0}, IsMinor: true},
	{Name: "Shaath", Profile: [12]float64{6.6, 2.0, 3.5, 2.3, 4.6, 4.0, 2.5, 5.2, 2.4, 3.7, 2.3, 3.4}},
	{Name: "Shaath", Profile: [12]float64{6.5, 2.7, 3.5, 5.4, 2.6, 3.5, 2.5, 4.7, 4.0, 2.7, 3.4, 3.2}, IsMinor: true},
	{Name: "EDMA", Profile: [12]float64{17.7661, 0.145624, 14.9265, 0.160186, 19.8049, 11.3587, 0.291248, 22.062, 0.145624, 8.15494, 0.232998, 4.95122}},
	{Name: "EDMA", Profile: [12]float64{18.2648, 0.737619, 14.0499, 16.8599, 0.702494, 14.4362, 0.702494, 18.6161, 4.56621, 1.93186, 7.37619, 1.75623}, IsMinor: true},
	{Name: "Bgate", Profile: [12]float64{16.8, 0.86, 12.95, 1.41, 13.49, 11.93, 1.25, 20.28, 1.80, 8.04, 0.62, 10.57}},
	{Name: "Bgate", Profile: [12]float64{18.16, 0.69, 12.99, 13.34, 1.07, 11.15, 1.38, 21.07, 7.49, 1.53, 6.24, 1.61}, IsMinor: true},
}

// KeyTemplates returns a copy of the built-in template table
func KeyTemplates() []KeyTemplate {
	out := make([]KeyTemplate, len(keyTemplates))
	copy(out, keyTemplates)
	return out
}

// KeyCandidate is one (root, mode) pair with its aggregate vote
type KeyCandidate struct {
	Root  int     `json:"root"`
	Mode  KeyMode `json:"mode"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// KeyResult is the outcome of a classification
type KeyResult struct {
	Root  int
	Mode  KeyMode
	Name  string
	Score float64
	// Candidates holds every (root, mode) pair, best first
	Candidates []KeyCandidate
}

// KeyClassifier matches chroma vectors against the template table
type KeyClassifier struct {
	Templates []KeyTemplate
	Metric    stats.SimilarityMetric
}

// NewKeyClassifier creates a classifier over all built-in templates
func NewKeyClassifier() *KeyClassifier {
	return &KeyClassifier{
		Templates: KeyTemplates(),
		Metric:    stats.CombinedSimilarity,
	}
}

// Classify finds the best key for cv. semitones is the pitch shift applied
// to the audio; the reported root is corrected back by it. ok is false for
// an empty vector.
func (kc *KeyClassifier) Classify(cv chroma.ChromaVector, semitones float64) (KeyResult, bool) {
	sum := cv.Sum()
	if sum <= 0 || !common.IsFinite(sum) {
		return KeyResult{Name: UnknownKey}, false
	}

	similarity := stats.GetSimilarityFunction(kc.Metric)
	input := cv.Normalized()

	// votes[shift][mode]
	var votes [12][2]float64
	for _, tmpl := range kc.Templates {
		mode := tmpl.Mode()
		for shift := range 12 {
			rotated := common.CircularShift(tmpl.Profile[:], shift)
			score := similarity(input[:], rotated)
			if !common.IsFinite(score) {
				continue
			}
			votes[shift][mode] += score
		}
	}

	correction := int(math.Round(common.Finite(semitones, 0)))

	candidates := make([]KeyCandidate, 0, 24)
	best := -1
	for shift := range 12 {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			root := common.PositiveMod(shift-correction, 12)
			candidates = append(candidates, KeyCandidate{
				Root:  root,
				Mode:  mode,
				Name:  KeyName(root, mode),
				Score: votes[shift][mode],
			})
			if best < 0 || votes[shift][mode] > candidates[best].Score {
				best = len(candidates) - 1
			}
		}
	}

	winner := candidates[best]
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return KeyResult{
		Root:       winner.Root,
		Mode:       winner.Mode,
		Name:       winner.Name,
		Score:      winner.Score,
		Candidates: candidates,
	}, true
}

// KeyName returns the display name of a key, e.g. "F# Minor"
func KeyName(root int, mode KeyMode) string {
	return chroma.PitchClassName(root) + " " + mode.String()
}

// RelativeKey returns the relative major/minor key
func RelativeKey(root int, mode KeyMode) (int, KeyMode) {
	if mode == KeyModeMajor {
		// Relative minor is 3 semitones down
		return common.PositiveMod(root-3, 12), KeyModeMinor
	}
	return common.PositiveMod(root+3, 12), KeyModeMajor
}

// ParallelKey returns the parallel major/minor key
func ParallelKey(root int, mode KeyMode) (int, KeyMode) {
	if mode == KeyModeMajor {
		return root, KeyModeMinor
	}
	return root, KeyModeMajor
}
