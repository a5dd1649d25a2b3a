package arc

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/sliceutils"
	"github.com/duetlabs/duet/internal/textutils"
)

const (
	driftLowAlignment  = 0.3
	driftHighAlignment = 0.1
	maxHistory         = 50
	questionQuoteLen   = 120
)

type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

type (
	// Report summarizes what one observed exchange did to the host's arc.
	Report struct {
		Theme       string
		EnergyDelta float64
		Alignment   float64
		IsQuestion  bool
	}

	// Drift is a per-turn signal that the host sidestepped the question
	// that was put to them.
	Drift struct {
		Severity  Severity
		Question  string
		Alignment float64
	}

	// Tracker follows one host's narrative thread: what they keep talking
	// about, how much energy they bring, and whether they answer what they
	// are asked.
	Tracker struct {
		mu         sync.Mutex
		logger     *slog.Logger
		classifier Classifier
		state      entity.ArcState
		drift      *Drift
	}
)

func NewTracker(logger *slog.Logger, hostID string, classifier Classifier) *Tracker {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &Tracker{
		logger:     logger,
		classifier: classifier,
		state: entity.ArcState{
			HostID: hostID,
			Energy: 0.5,
		},
	}
}

// Restore replaces the tracker's state with a persisted one. Drift is a
// per-turn signal and never survives a restore.
func (t *Tracker) Restore(state entity.ArcState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.drift = nil
}

// Observe folds one spoken exchange into the host's arc. incomingQuestion
// is the question this exchange was responding to, empty when there was
// none.
func (t *Tracker) Observe(seq uint64, text, incomingQuestion string) Report {
	theme := t.classifier.Classify(text)
	lower := strings.ToLower(text)

	delta := 0.0
	if textutils.ContainsQuestion(text) {
		delta += 0.1
	}
	delta += 0.05 * float64(countMarkers(lower, concreteMarkers))
	delta += 0.05 * float64(countDigitRuns(text))
	delta -= 0.1 * float64(countMarkers(lower, agreementMarkers))
	delta = math.Max(-0.3, math.Min(0.3, delta))

	alignment := 1.0
	if incomingQuestion != "" {
		alignment = textutils.Overlap(text, incomingQuestion)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if theme != "" {
		t.state.Theme = theme
	}
	t.state.Energy = math.Max(0, math.Min(1, t.state.Energy+delta))
	t.state.DriftScore = alignment
	t.state.History = append(t.state.History, entity.ArcSnapshot{
		Seq:       seq,
		Theme:     theme,
		Energy:    t.state.Energy,
		Alignment: alignment,
	})
	t.state.History = sliceutils.Cut(t.state.History, -maxHistory, len(t.state.History))

	t.drift = nil
	if incomingQuestion != "" && alignment < driftLowAlignment {
		severity := SeverityLow
		if alignment < driftHighAlignment {
			severity = SeverityHigh
		}
		t.drift = &Drift{
			Severity:  severity,
			Question:  textutils.Truncate(incomingQuestion, questionQuoteLen),
			Alignment: alignment,
		}
		t.logger.Debug("question dodge detected",
			"host", t.state.HostID, "severity", severity, "alignment", alignment)
	}

	report := Report{
		Theme:       theme,
		EnergyDelta: delta,
		Alignment:   alignment,
		IsQuestion:  textutils.ContainsQuestion(text),
	}
	if report.IsQuestion {
		t.state.LastQuestion = textutils.LastQuestion(text)
	}
	return report
}

// DriftSignal returns the drift detected by the most recent Observe, or nil.
// It does not accumulate across turns.
func (t *Tracker) DriftSignal() *Drift {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drift == nil {
		return nil
	}
	d := *t.drift
	return &d
}

// Summary snapshots the arc for steering and persistence.
func (t *Tracker) Summary() entity.ArcState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.History = append([]entity.ArcSnapshot(nil), t.state.History...)
	return s
}

