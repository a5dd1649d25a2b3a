package duet

import (
	"context"
	"fmt"
	"time"

	"github.com/duetlabs/duet/engine"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/duetlabs/duet/internal/sliceutils"
	"github.com/duetlabs/duet/internal/textutils"
	"github.com/duetlabs/duet/memory"
	"github.com/duetlabs/duet/pipeline"
	"github.com/duetlabs/duet/research"
	"github.com/duetlabs/duet/steering"
	"github.com/google/uuid"
)

const recentFlowWindow = 10

// Run drives the dialogue for the given number of turns. A cancelled context
// stops cleanly between turns.
func (s *Session) Run(ctx context.Context, turns int) error {
	for i := 0; i < turns; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Turn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Turn runs one complete turn: resolve a directive for the acting host,
// obtain their response (buffered or synchronous), record the exchange, and
// pre-generate the other host's reply while this one is narrated.
func (s *Session) Turn(ctx context.Context) error {
	speaker := s.hosts[s.next]
	other := s.hosts[1-s.next]
	s.next = 1 - s.next

	tc := s.turnContext(ctx, speaker, other)
	directive := s.steering.Resolve(ctx, tc)
	s.logger.Debug("directive resolved",
		"host", speaker.host.ID, "command", directive.Command, "tier", directive.Tier, "reason", directive.Reason)

	snap, brief, err := s.snapshotFor(ctx, speaker, other, directive)
	if err != nil {
		return err
	}

	text, hit, err := s.pipeline.Request(ctx, *snap)
	if err != nil {
		if errors.Is(err, errors.ErrGenerationTimeout) {
			s.logger.Warn("generation timed out, skipping turn", "host", speaker.host.ID)
			return nil
		}
		return err
	}
	s.logger.Debug("response obtained", "host", speaker.host.ID, "buffered", hit)

	text = s.vetoRepetition(ctx, speaker, snap, text)

	incomingQuestion := textutils.LastQuestion(s.lastText)

	s.seq++
	ex := &entity.Exchange{
		ID:        uuid.NewString(),
		SpeakerID: speaker.host.ID,
		Seq:       s.seq,
		Text:      text,
		Research:  brief.Text,
		CreatedAt: time.Now(),
	}
	if err := speaker.memory.Store(ctx, ex, brief.Meta()); err != nil {
		// The in-memory view has the exchange; persistence failure is not
		// fatal to the conversation.
		s.logger.Warn("exchange not persisted", "host", speaker.host.ID, "error", err)
	}

	s.point.UpdateFromExchange(ex)
	speaker.arc.Observe(ex.Seq, text, incomingQuestion)

	s.lastText = text
	s.recent = append(s.recent, speaker.host.Name+": "+text)
	s.recent = sliceutils.Cut(s.recent, -recentFlowWindow, len(s.recent))

	s.steering.NoteExchange(ctx, s.recent)
	s.persistState(speaker)

	s.prefetchNext(ctx, other, speaker)

	if s.output != nil {
		s.output(speaker.host, text)
	}
	if err := s.synthesizer.Speak(ctx, speaker.host.Voice, text); err != nil {
		s.logger.Warn("narration failed", "host", speaker.host.ID, "error", err)
	}
	return nil
}

func (s *Session) turnContext(ctx context.Context, speaker, other *hostState) *steering.TurnContext {
	query := s.lastText
	if query == "" {
		query = s.topic
	}
	return &steering.TurnContext{
		Speaker:  speaker.host,
		Other:    other.host,
		Seq:      s.seq + 1,
		LastText: s.lastText,
		Point:    s.point.State(),
		Arc:      speaker.arc.Summary(),
		Distance: s.point.CalculateDistance(ctx, query),
		Drift:    speaker.arc.DriftSignal(),
	}
}

// snapshotFor assembles the full generation snapshot for a host turn:
// retrieved memories, research brief, recent flow, and the rendered prompt.
func (s *Session) snapshotFor(ctx context.Context, speaker, other *hostState, directive entity.Directive) (*pipeline.Snapshot, *research.Brief, error) {
	pointState := s.point.State()

	query := s.lastText
	if query == "" {
		query = s.topic
	}

	// The query text is the most recent exchange; during prefetch that
	// exchange lives in the acting host's own store, so exclude it by seq.
	var memories []engine.RetrievedMemory
	scored, err := speaker.memory.Retrieve(ctx, query, s.sessionConfig.RetrieveK, memory.WithoutSeq(s.seq))
	if err != nil {
		s.logger.Warn("memory retrieval failed, continuing without", "host", speaker.host.ID, "error", err)
	}
	for _, sc := range scored {
		memories = append(memories, engine.RetrievedMemory{
			Speaker: speaker.host.Name,
			Text:    sc.Exchange.Text,
			Score:   sc.Score,
		})
	}

	brief := s.research.Gather(ctx, pointState.Essence)

	prompt, err := engine.BuildTurnPrompt(engine.PromptValues{
		Host:          *speaker.host,
		OtherHostName: other.host.Name,
		Essence:       pointState.Essence,
		Directive:     directive,
		LastMessage:   s.lastText,
		RecentFlow:    append([]string(nil), s.recent...),
		Memories:      memories,
		Research:      brief.Text,
	})
	if err != nil {
		return nil, nil, err
	}

	return &pipeline.Snapshot{
		Speaker:     speaker.host.ID,
		LastSeq:     s.seq,
		Essence:     pointState.Essence,
		Instruction: directive.Instruction,
		System:      engine.SystemPrompt(*speaker.host),
		Prompt:      prompt,
	}, brief, nil
}

// vetoRepetition regenerates once, with a nudge, when the candidate response
// repeats recent ground. A still-repetitive second attempt is accepted.
func (s *Session) vetoRepetition(ctx context.Context, speaker *hostState, snap *pipeline.Snapshot, text string) string {
	repetitive, err := speaker.memory.DetectRepetition(ctx, text)
	if err != nil {
		s.logger.Warn("repetition check failed, accepting response", "host", speaker.host.ID, "error", err)
		return text
	}
	if !repetitive {
		return text
	}
	s.logger.Info("repetitive response vetoed, regenerating", "host", speaker.host.ID)

	nudged := *snap
	nudged.Prompt += "\n\nYou have already made that point. Say something you have not said yet, from a different angle."
	regenerated, err := s.generateForSnapshot(ctx, nudged)
	if err != nil {
		s.logger.Warn("regeneration failed, keeping original response", "host", speaker.host.ID, "error", err)
		return text
	}
	return regenerated
}

func (s *Session) persistState(speaker *hostState) {
	if err := s.session.SavePoint(s.point.State()); err != nil {
		s.logger.Warn("point state not persisted", "error", err)
	}
	if err := s.session.SaveArc(speaker.host.ID, speaker.arc.Summary()); err != nil {
		s.logger.Warn("arc state not persisted", "host", speaker.host.ID, "error", err)
	}
}

// prefetchNext overlaps the other host's generation with narration. A stale
// buffered response is invalidated first; prefetching is skipped while a
// point shift is pending, since the pivot will change the context anyway.
func (s *Session) prefetchNext(ctx context.Context, other, speaker *hostState) {
	if s.steering.ShiftPending() {
		s.pipeline.Invalidate(other.host.ID)
		return
	}

	tc := s.turnContext(ctx, other, speaker)
	directive := s.steering.Resolve(ctx, tc)

	snap, _, err := s.snapshotFor(ctx, other, speaker, directive)
	if err != nil {
		s.logger.Warn("prefetch snapshot failed", "host", other.host.ID, "error", err)
		return
	}

	s.pipeline.InvalidateIfStale(other.host.ID, snap.Hash())
	s.pipeline.Prefetch(ctx, *snap)
}

// Transcript formats the recent flow for display.
func (s *Session) Transcript() string {
	var out string
	for _, line := range s.recent {
		out += fmt.Sprintln(line)
	}
	return out
}
