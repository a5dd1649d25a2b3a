package steering

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/duetlabs/duet/arc"
	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/engine"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/duetlabs/duet/point"
)

// ShiftJudge is the advisory judge consulted during Assess. Satisfied by
// engine.Engine; optional.
type ShiftJudge interface {
	JudgeShift(ctx context.Context, state entity.PointState, recent []string) (*engine.ShiftJudgment, error)
}

type (
	// TurnContext carries everything resolution needs for one turn. It is
	// assembled fresh each turn; the engine keeps no per-turn state of its
	// own.
	TurnContext struct {
		Speaker  *entity.Host
		Other    *entity.Host
		Seq      uint64
		LastText string
		Point    entity.PointState
		Arc      entity.ArcState
		Distance float64
		Drift    *arc.Drift
	}

	shiftIntent struct {
		essence string
		reason  string
	}

	// Engine resolves one directive per turn through a fixed priority
	// hierarchy. First applicable rule wins; most turns fall through to the
	// tactical tier.
	Engine struct {
		mu        sync.Mutex
		logger    *slog.Logger
		config    *config.SessionConfig
		point     *point.Model
		judge     ShiftJudge
		analyzers []Analyzer

		pending   *shiftIntent
		exchanges uint64
	}
)

func NewEngine(logger *slog.Logger, cfg *config.SessionConfig, pt *point.Model, judge ShiftJudge, analyzers ...Analyzer) *Engine {
	if len(analyzers) == 0 {
		analyzers = DefaultAnalyzers()
	}
	return &Engine{
		logger:    logger,
		config:    cfg,
		point:     pt,
		judge:     judge,
		analyzers: analyzers,
	}
}

// Resolve produces the directive for the upcoming turn. Deterministic for a
// given TurnContext and pending-shift state.
func (e *Engine) Resolve(ctx context.Context, tc *TurnContext) entity.Directive {
	d := e.resolve(ctx, tc)
	if err := validate(d); err != nil {
		e.logger.Warn("directive rejected, continuing", "command", d.Command, "error", err)
		return entity.Continue("invalid directive degraded")
	}
	return d
}

func (e *Engine) resolve(ctx context.Context, tc *TurnContext) entity.Directive {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	if pending != nil {
		e.point.Shift(pending.essence, pending.reason, tc.Seq)
		return entity.Directive{
			Command: entity.CommandPivot,
			Instruction: fmt.Sprintf("The conversation is moving on. Pivot naturally to %q and leave the current thread behind.",
				pending.essence),
			Reason: pending.reason,
			Tier:   1,
		}
	}

	if tc.Distance > e.config.StrongPullDistance {
		return entity.Directive{
			Command: entity.CommandFocusIntern,
			Instruction: fmt.Sprintf("You have wandered far off. Bring it back to %s now, explicitly.",
				tc.Point.Essence),
			Reason: fmt.Sprintf("strong pull: distance %.2f", tc.Distance),
			Tier:   2,
		}
	}

	if tc.Drift != nil && tc.Drift.Severity == arc.SeverityHigh {
		return entity.Directive{
			Command: entity.CommandFocusQuestion,
			Instruction: fmt.Sprintf("%s asked you: %q. Answer it directly before anything else.",
				otherName(tc), tc.Drift.Question),
			Reason: fmt.Sprintf("question dodged, alignment %.2f", tc.Drift.Alignment),
			Tier:   3,
		}
	}

	if tc.Distance > e.config.GentlePullDistance {
		return entity.Directive{
			Command: entity.CommandFocusIntern,
			Instruction: fmt.Sprintf("Gently steer back toward %s while keeping your current thought.",
				tc.Point.Essence),
			Reason: fmt.Sprintf("gentle pull: distance %.2f", tc.Distance),
			Tier:   4,
		}
	}

	return e.tactical(ctx, tc)
}

// tactical is the fallback tier. Analyzer reports are consumed in a fixed
// kind order so adding an analyzer never changes resolution logic.
func (e *Engine) tactical(ctx context.Context, tc *TurnContext) entity.Directive {
	reports := make([]Report, 0, len(e.analyzers))
	for _, a := range e.analyzers {
		reports = append(reports, a.Analyze(ctx, tc)...)
	}

	for _, kind := range []ReportKind{ReportFactFlag, ReportTopicSaturation, ReportLowEnergy, ReportMissingAngle} {
		for _, r := range reports {
			if r.Kind != kind {
				continue
			}
			return tacticalDirective(r, tc)
		}
	}
	return entity.Continue("no intervention needed")
}

func tacticalDirective(r Report, tc *TurnContext) entity.Directive {
	switch r.Kind {
	case ReportFactFlag:
		return entity.Directive{
			Command:     entity.CommandChallenge,
			Instruction: fmt.Sprintf("Push back on that claim: %s. Ask what it is based on.", r.Detail),
			Reason:      "unsourced claim flagged",
			Tier:        5,
		}
	case ReportTopicSaturation:
		return entity.Directive{
			Command:     entity.CommandSteer,
			Instruction: fmt.Sprintf("This angle is worn out. Take %s somewhere it has not gone yet.", tc.Point.Essence),
			Reason:      r.Detail,
			Tier:        5,
		}
	case ReportLowEnergy:
		return entity.Directive{
			Command:     entity.CommandDeepen,
			Instruction: "Stop agreeing and dig in. Pick one concrete detail and go three levels deeper on it.",
			Reason:      r.Detail,
			Tier:        5,
		}
	case ReportMissingAngle:
		return entity.Directive{
			Command:     entity.CommandSteer,
			Instruction: fmt.Sprintf("Bring in the angle nobody has touched: %s.", r.Detail),
			Reason:      "uncovered facet",
			Tier:        5,
		}
	}
	return entity.Continue("unrecognized report kind")
}

// NoteExchange is called once per appended exchange. Every ShiftAssessEvery
// exchanges it runs an assessment; a recorded intent is consumed by a later
// Resolve at tier 1, never this turn.
func (e *Engine) NoteExchange(ctx context.Context, recent []string) {
	e.mu.Lock()
	e.exchanges++
	due := e.exchanges%uint64(e.config.ShiftAssessEvery) == 0
	e.mu.Unlock()

	if due {
		e.Assess(ctx, recent)
	}
}

// Assess decides whether the point should shift. The model's own verdict is
// authoritative; the judge can only accelerate a shift, never veto one.
// Judge failures degrade to no shift.
func (e *Engine) Assess(ctx context.Context, recent []string) {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	state := e.point.State()

	var judgment *engine.ShiftJudgment
	if e.judge != nil {
		var err error
		if judgment, err = e.judge.JudgeShift(ctx, state, recent); err != nil {
			e.logger.Warn("shift judge unavailable", "error", err)
			judgment = nil
		}
	}

	var intent *shiftIntent
	switch {
	case e.point.ShouldShift():
		intent = &shiftIntent{
			essence: e.point.DominantFacet(),
			reason:  fmt.Sprintf("point exhausted: saturation %.2f, strength %.2f", state.Saturation, state.Strength),
		}
		if judgment != nil && judgment.NewEssence != "" {
			intent.essence = judgment.NewEssence
		}
	case judgment != nil && judgment.ShouldShift && judgment.NewEssence != "":
		intent = &shiftIntent{
			essence: judgment.NewEssence,
			reason:  "judge: " + judgment.Reason,
		}
	}

	if intent != nil {
		e.mu.Lock()
		e.pending = intent
		e.mu.Unlock()
		e.logger.Info("shift intent recorded", "essence", intent.essence, "reason", intent.reason)
	}
}

// ShiftPending reports whether an assessment has queued a point shift.
func (e *Engine) ShiftPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

func validate(d entity.Directive) error {
	if !d.Valid() {
		return errors.Wrapf(errors.ErrInvalidDirective, "command %q tier %d", d.Command, d.Tier)
	}
	return nil
}

func otherName(tc *TurnContext) string {
	if tc.Other != nil {
		return tc.Other.Name
	}
	return "Your co-host"
}
