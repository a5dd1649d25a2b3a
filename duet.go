package duet

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/duetlabs/duet/arc"
	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/engine"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
	"github.com/duetlabs/duet/internal/mylog"
	"github.com/duetlabs/duet/internal/sliceutils"
	"github.com/duetlabs/duet/memory"
	"github.com/duetlabs/duet/pipeline"
	"github.com/duetlabs/duet/point"
	"github.com/duetlabs/duet/research"
	"github.com/duetlabs/duet/speech"
	"github.com/duetlabs/duet/steering"
	"github.com/duetlabs/duet/store"
)

type (
	hostState struct {
		host   *entity.Host
		memory *memory.Service
		arc    *arc.Tracker
	}

	// Session orchestrates one two-host dialogue: steering, per-host memory,
	// response pre-generation, research, and narration.
	Session struct {
		logger      *slog.Logger
		engine      *engine.Engine
		point       *point.Model
		steering    *steering.Engine
		pipeline    *pipeline.Pipeline
		research    *research.Service
		synthesizer speech.Synthesizer
		session     *store.SessionStore
		hosts       [2]*hostState

		topic     string
		sessionID string
		fresh     bool
		output    Output

		seq      uint64
		lastText string
		recent   []string
		next     int

		modelConfig    *config.ModelConfig
		memoryConfig   *config.MemoryConfig
		sessionConfig  *config.SessionConfig
		researchConfig *config.ResearchConfig
		speechConfig   *config.SpeechConfig
		logConfig      *config.LogConfig
	}

	Option func(*Session)

	// Output receives each spoken exchange as it happens.
	Output func(host *entity.Host, text string)
)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

func WithHosts(a, b *entity.Host) Option {
	return func(s *Session) { s.hosts[0] = &hostState{host: a}; s.hosts[1] = &hostState{host: b} }
}

func WithSessionID(id string) Option {
	return func(s *Session) { s.sessionID = id }
}

// WithFresh discards any persisted session state before the run starts.
func WithFresh() Option {
	return func(s *Session) { s.fresh = true }
}

// WithDataDir places the session database under dir.
func WithDataDir(dir string) Option {
	return func(s *Session) { s.memoryConfig.SqlitePath = filepath.Join(dir, "duet.db") }
}

func WithSynthesizer(syn speech.Synthesizer) Option {
	return func(s *Session) { s.synthesizer = syn }
}

func WithOutput(out Output) Option {
	return func(s *Session) { s.output = out }
}

func WithModelConfig(conf *config.ModelConfig) Option {
	return func(s *Session) { s.modelConfig = conf }
}

// WithEngine supplies a pre-built generation engine. Tests use it to plug
// deterministic providers.
func WithEngine(e *engine.Engine) Option {
	return func(s *Session) { s.engine = e }
}

func WithSessionConfig(conf *config.SessionConfig) Option {
	return func(s *Session) { s.sessionConfig = conf }
}

func WithMemoryConfig(conf *config.MemoryConfig) Option {
	return func(s *Session) { s.memoryConfig = conf }
}

func WithResearchConfig(conf *config.ResearchConfig) Option {
	return func(s *Session) { s.researchConfig = conf }
}

func WithSpeechConfig(conf *config.SpeechConfig) Option {
	return func(s *Session) { s.speechConfig = conf }
}

func NewSession(ctx context.Context, topic string, optionFuncs ...Option) (*Session, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "topic is required")
	}

	s := &Session{
		topic:          topic,
		sessionID:      sessionID(topic),
		modelConfig:    config.NewModelConfig(),
		memoryConfig:   config.NewMemoryConfig(),
		sessionConfig:  config.NewSessionConfig(),
		researchConfig: config.NewResearchConfig(),
		speechConfig:   config.NewSpeechConfig(),
		logConfig:      config.NewLogConfig(),
	}
	for _, f := range optionFuncs {
		f(s)
	}

	if s.logger == nil {
		s.logger = mylog.NewLogger(s.logConfig.LogLevel, s.logConfig.LogHandler)
	}
	if s.hosts[0] == nil || s.hosts[1] == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "two hosts are required")
	}

	var err error
	if s.engine == nil {
		if s.engine, err = engine.NewEngine(s.logger, s.modelConfig); err != nil {
			return nil, err
		}
	}

	if s.session, err = store.NewSessionStore(s.memoryConfig.SqlitePath, s.sessionID); err != nil {
		return nil, err
	}
	if s.fresh {
		if err := s.session.Reset(); err != nil {
			return nil, err
		}
	}

	s.point = point.NewModel(s.logger, s.sessionConfig, s.engine, topic)
	if !s.fresh {
		if state, ok, err := s.session.LoadPoint(); err != nil {
			return nil, err
		} else if ok {
			s.point.Restore(state)
		}
	}

	for _, hs := range s.hosts {
		if err := s.initHost(ctx, hs); err != nil {
			return nil, err
		}
	}

	if !s.fresh {
		s.restoreFlow(ctx)
	}

	s.steering = steering.NewEngine(s.logger, s.sessionConfig, s.point, s.engine)
	s.pipeline = pipeline.New(s.logger, s.generateForSnapshot)
	s.research = research.NewService(s.logger, s.researchConfig)

	if s.synthesizer == nil {
		if s.speechConfig.Enabled {
			syn, err := speech.NewOpenAISynthesizer(s.logger, s.speechConfig, s.engine.OpenAIClient())
			if err != nil {
				return nil, err
			}
			s.synthesizer = syn
		} else {
			s.synthesizer = speech.NoopSynthesizer{}
		}
	}

	return s, nil
}

func (s *Session) initHost(ctx context.Context, hs *hostState) error {
	var durable *memory.SqliteStore
	if s.memoryConfig.SqliteEnabled {
		var err error
		durable, err = memory.NewSqliteStore(s.memoryConfig.SqlitePath, hs.host.ID, s.modelConfig.EmbeddingDimension)
		if err != nil {
			return err
		}
		if s.fresh {
			if err := durable.Reset(ctx); err != nil {
				return err
			}
		}
	}

	hs.memory = memory.NewService(hs.host.ID, s.logger, s.memoryConfig, s.engine, durable)
	if !s.fresh {
		n, err := hs.memory.Load(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("resumed host memory", "host", hs.host.ID, "exchanges", n)
		}
	}

	hs.arc = arc.NewTracker(s.logger, hs.host.ID, nil)
	if !s.fresh {
		if state, ok, err := s.session.LoadArc(hs.host.ID); err != nil {
			return err
		} else if ok {
			hs.arc.Restore(state)
		}
	}
	return nil
}

// restoreFlow rebuilds the turn-loop view (sequence counter, recent lines,
// whose turn it is) from both hosts' reloaded memories.
func (s *Session) restoreFlow(ctx context.Context) {
	var all []*entity.Exchange
	for _, hs := range s.hosts {
		all = append(all, hs.memory.Recent(recentFlowWindow)...)
	}
	if len(all) == 0 {
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	for _, ex := range sliceutils.Cut(all, -recentFlowWindow, len(all)) {
		name := ex.SpeakerID
		if hs := s.hostByID(ex.SpeakerID); hs != nil {
			name = hs.host.Name
		}
		s.recent = append(s.recent, name+": "+ex.Text)
	}

	last := all[len(all)-1]
	s.seq = last.Seq
	s.lastText = last.Text
	if s.hosts[0].host.ID == last.SpeakerID {
		s.next = 1
	}
	s.logger.Info("resumed session flow", "seq", s.seq)

	if hs := s.hostByID(last.SpeakerID); hs != nil {
		if meta, err := hs.memory.ResearchMeta(ctx, last.ID); err == nil && meta != nil && meta.Query != "" {
			s.logger.Info("resumed with research context",
				"query", meta.Query, "sources", len(meta.Sources), "findings", meta.Findings)
		}
	}
}

// generateForSnapshot is the pipeline's generation function. It reads only
// the snapshot it is handed.
func (s *Session) generateForSnapshot(ctx context.Context, snap pipeline.Snapshot) (string, error) {
	hs := s.hostByID(snap.Speaker)
	if hs == nil {
		return "", errors.Wrapf(errors.ErrNotFound, "unknown speaker %q", snap.Speaker)
	}
	return s.engine.Generate(ctx, &engine.GenerateRequest{
		Provider: hs.host.Provider,
		Model:    hs.host.Model,
		System:   snap.System,
		Prompt:   snap.Prompt,
	})
}

func (s *Session) hostByID(id string) *hostState {
	for _, hs := range s.hosts {
		if hs != nil && hs.host.ID == id {
			return hs
		}
	}
	return nil
}

// Topic returns the topic the session was started with.
func (s *Session) Topic() string {
	return s.topic
}

// PipelineMetrics exposes buffer hit/miss counters for the status endpoint.
func (s *Session) PipelineMetrics() pipeline.Metrics {
	return s.pipeline.Metrics()
}

// PointState snapshots the attractor for the status endpoint.
func (s *Session) PointState() entity.PointState {
	return s.point.State()
}

// ArcStates snapshots both hosts' arcs for the status endpoint.
func (s *Session) ArcStates() []entity.ArcState {
	states := make([]entity.ArcState, 0, len(s.hosts))
	for _, hs := range s.hosts {
		states = append(states, hs.arc.Summary())
	}
	return states
}

// ExchangeCount is the total number of exchanges spoken this session.
func (s *Session) ExchangeCount() int {
	total := 0
	for _, hs := range s.hosts {
		total += hs.memory.Count()
	}
	return total
}

func (s *Session) Close() error {
	var firstErr error
	for _, hs := range s.hosts {
		if hs != nil && hs.memory != nil {
			if err := hs.memory.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.session != nil {
		if err := s.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sessionID derives a stable identifier from the topic so rerunning the same
// topic resumes its session.
func sessionID(topic string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
