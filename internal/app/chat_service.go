package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"docuchat/internal/model"
	"docuchat/internal/prompt"
	"docuchat/internal/repository"
)

// Capability and store contracts consumed by the chat pipeline. Production
// wiring binds them to the ai client, the Tavily client, the gorm
// repositories, and the RabbitMQ turn publisher; tests substitute fakes.
type (
	Embedder interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}

	Generator interface {
		Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
	}

	WebSearcher interface {
		Search(ctx context.Context, query string) (string, error)
	}

	TurnRecorder interface {
		Publish(ctx context.Context, turn model.Turn) error
	}

	SessionStore interface {
		Create(ctx context.Context, session *model.ChatSession) error
		GetByIDAndUserID(ctx context.Context, sessionID, userID uint) (*model.ChatSession, error)
		ListByUserID(ctx context.Context, userID uint) ([]repository.SessionSummary, error)
		Rename(ctx context.Context, sessionID, userID uint, name string) error
		DeleteByIDAndUserID(ctx context.Context, sessionID, userID uint) error
	}

	MessageStore interface {
		ListRecentBySessionID(ctx context.Context, sessionID uint, limit int) ([]model.ChatMessage, error)
		ListBySessionID(ctx context.Context, sessionID uint) ([]model.ChatMessage, error)
	}

	SegmentSearcher interface {
		Search(ctx context.Context, queryVec []float32, topN int, filter repository.SegmentFilter) ([]repository.SegmentHit, error)
	}

	LinkReader interface {
		ListDocumentIDs(ctx context.Context, sessionID uint) ([]uint, error)
	}

	HistoryCache interface {
		GetHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error)
		SetHistory(ctx context.Context, sessionID uint, messages []model.ChatMessage) error
		DeleteHistory(ctx context.Context, sessionID uint) error
		MarkDirty(ctx context.Context, sessionID uint) error
		IsDirty(ctx context.Context, sessionID uint) (bool, error)
	}
)

// StreamEmitter receives the client-visible events of one chat stream, in
// order: exactly one Metadata, then answer chunks, then Done or Error.
type StreamEmitter interface {
	Metadata(meta StreamMetadata) error
	AnswerChunk(text string) error
	Done() error
	Error(message string) error
}

type StreamMetadata struct {
	Search        string  `json:"search"`
	Duration      float64 `json:"duration"`
	ChatSessionID uint    `json:"chat_session_id"`
}

type StreamRequest struct {
	UserID     uint
	Query      string
	SearchMode bool
	SessionID  uint // 0 = create a new session
}

// ChatConfig tunes the retrieval and streaming pipeline.
type ChatConfig struct {
	TopN          int
	HistoryLimit  int
	FlushBatch    int
	StreamTimeout time.Duration
}

type ChatService struct {
	sessions SessionStore
	messages MessageStore
	links    LinkReader
	segments SegmentSearcher

	embedder  Embedder
	generator Generator
	searcher  WebSearcher
	turns     TurnRecorder
	history   HistoryCache

	cfg ChatConfig
	log *logrus.Logger
}

// ChatServiceDeps bundles the collaborators of the chat pipeline.
type ChatServiceDeps struct {
	Sessions SessionStore
	Messages MessageStore
	Links    LinkReader
	Segments SegmentSearcher

	Embedder  Embedder
	Generator Generator
	Searcher  WebSearcher
	Turns     TurnRecorder
	History   HistoryCache

	Config ChatConfig
	Log    *logrus.Logger
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	cfg := deps.Config
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = 5
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 2 * time.Minute
	}
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}
	return &ChatService{
		sessions:  deps.Sessions,
		messages:  deps.Messages,
		links:     deps.Links,
		segments:  deps.Segments,
		embedder:  deps.Embedder,
		generator: deps.Generator,
		searcher:  deps.Searcher,
		turns:     deps.Turns,
		history:   deps.History,
		cfg:       cfg,
		log:       log,
	}
}

// StreamChat runs one chat turn: resolve the session, retrieve context,
// stream the generated answer through emit, and enqueue the finished turn.
// Errors returned from here happen strictly before the first event, so the
// caller can still answer with a plain HTTP error; once the metadata event is
// out, failures are reported in-band and StreamChat returns nil.
func (s *ChatService) StreamChat(ctx context.Context, req StreamRequest, emit StreamEmitter) error {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if req.UserID == 0 || query == "" {
		return fmt.Errorf("query must not be empty: %w", ErrValidation)
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return err
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %v: %w", err, ErrUpstream)
	}

	hits, err := s.retrieveSegments(ctx, session.ID, req.UserID, queryVec)
	if err != nil {
		return err
	}

	history, err := s.loadRecentHistory(ctx, session.ID)
	if err != nil {
		return err
	}

	webSnippet := ""
	if req.SearchMode {
		webSnippet = s.fetchWebSnippet(ctx, query)
	}

	retrieved := make([]prompt.RetrievedSegment, len(hits))
	for i, h := range hits {
		retrieved[i] = prompt.RetrievedSegment{Content: h.Content, Filename: h.Filename}
	}
	promptText := prompt.Assemble(retrieved, history, webSnippet, query)

	// The metadata event goes out before any answer text so the client can
	// resolve the session id immediately.
	clientGone := false
	if err := emit.Metadata(StreamMetadata{
		Search:        webSnippet,
		Duration:      time.Since(start).Seconds(),
		ChatSessionID: session.ID,
	}); err != nil {
		clientGone = true
	}

	answer, clientGone, genErr := s.consumeGeneration(ctx, promptText, emit, clientGone)

	if genErr != nil {
		s.log.WithError(genErr).WithField("session_id", session.ID).Error("generation stream failed")
		if !clientGone {
			_ = emit.Error("generation failed")
		}
	} else if !clientGone {
		_ = emit.Done()
	}

	s.recordTurn(ctx, session.ID, req.UserID, query, answer)
	return nil
}

func (s *ChatService) resolveSession(ctx context.Context, req StreamRequest) (*model.ChatSession, error) {
	if req.SessionID != 0 {
		session, err := s.sessions.GetByIDAndUserID(ctx, req.SessionID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load session: %v: %w", err, ErrPersistence)
		}
		if session == nil {
			return nil, fmt.Errorf("chat session %d: %w", req.SessionID, ErrNotFound)
		}
		return session, nil
	}

	// No id supplied: create and commit right away so a session id exists
	// even if the rest of the turn fails.
	session := &model.ChatSession{UserID: req.UserID, Name: "New Chat"}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %v: %w", err, ErrPersistence)
	}
	return session, nil
}

func (s *ChatService) retrieveSegments(ctx context.Context, sessionID, userID uint, queryVec []float32) ([]repository.SegmentHit, error) {
	docIDs, err := s.links.ListDocumentIDs(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list linked documents: %v: %w", err, ErrPersistence)
	}

	// An owner filter is always applied so retrieval never crosses tenants.
	filter := repository.SegmentFilter{UserID: userID, DocumentIDs: docIDs}
	hits, err := s.segments.Search(ctx, queryVec, s.cfg.TopN, filter)
	if err != nil {
		return nil, fmt.Errorf("segment search: %v: %w", err, ErrPersistence)
	}
	return hits, nil
}

func (s *ChatService) loadRecentHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, error) {
	if s.history != nil {
		if dirty, err := s.history.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, err := s.history.GetHistory(ctx, sessionID); err == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messages.ListRecentBySessionID(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %v: %w", err, ErrPersistence)
	}
	if s.history != nil {
		if dirty, err := s.history.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.history.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// fetchWebSnippet is best-effort: a failing search provider degrades to a
// placeholder instead of aborting the turn.
func (s *ChatService) fetchWebSnippet(ctx context.Context, query string) string {
	if s.searcher == nil {
		return prompt.NoWebInfoPlaceholder
	}
	snippet, err := s.searcher.Search(ctx, query)
	if err != nil || strings.TrimSpace(snippet) == "" {
		if err != nil {
			s.log.WithError(err).Warn("web search failed, continuing without it")
		}
		return prompt.NoWebInfoPlaceholder
	}
	return snippet
}

// consumeGeneration pulls the token stream, emitting answer chunks in flush
// batches. Client liveness is polled between tokens; a disconnect stops the
// pull immediately and whatever accumulated so far becomes the answer.
func (s *ChatService) consumeGeneration(ctx context.Context, promptText string, emit StreamEmitter, clientGone bool) (answer string, gone bool, genErr error) {
	streamCtx, cancelStream := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancelStream()

	tokens, errs := s.generator.Stream(streamCtx, promptText)

	var full strings.Builder
	flushBuf := make([]string, 0, s.cfg.FlushBatch)

	emitChunk := func(text string) {
		if clientGone {
			return
		}
		if err := emit.AnswerChunk(text); err != nil {
			clientGone = true
		}
	}
	flushPending := func() {
		for _, t := range flushBuf {
			emitChunk(t)
		}
		flushBuf = flushBuf[:0]
	}

consume:
	for {
		if ctx.Err() != nil {
			clientGone = true
			break
		}
		select {
		case tok, ok := <-tokens:
			if !ok {
				break consume
			}
			full.WriteString(tok)
			flushBuf = append(flushBuf, tok)
			if len(flushBuf) >= s.cfg.FlushBatch {
				flushPending()
			}
		case <-ctx.Done():
			clientGone = true
			break consume
		}
	}
	cancelStream()

	if !clientGone {
		if e, ok := <-errs; ok && e != nil {
			genErr = e
		}
	}

	flushPending()
	return full.String(), clientGone, genErr
}

// recordTurn enqueues the finished turn. The client already has the streamed
// text, so a failure here is logged rather than surfaced.
func (s *ChatService) recordTurn(ctx context.Context, sessionID, userID uint, query, answer string) {
	persistCtx := context.WithoutCancel(ctx)

	if s.history != nil {
		_ = s.history.MarkDirty(persistCtx, sessionID)
		_ = s.history.DeleteHistory(persistCtx, sessionID)
	}

	turn := model.Turn{SessionID: sessionID, UserID: userID, Query: query, Answer: answer}
	if err := s.turns.Publish(persistCtx, turn); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("record turn failed")
	}
}

func (s *ChatService) ListSessions(ctx context.Context, userID uint) ([]repository.SessionSummary, error) {
	if userID == 0 {
		return nil, ErrValidation
	}
	sessions, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %v: %w", err, ErrPersistence)
	}
	return sessions, nil
}

// GetSession returns the session and its messages in chronological order.
func (s *ChatService) GetSession(ctx context.Context, userID, sessionID uint) (*model.ChatSession, []model.ChatMessage, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.messages.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("list session messages: %v: %w", err, ErrPersistence)
	}
	return session, messages, nil
}

func (s *ChatService) RenameSession(ctx context.Context, userID, sessionID uint, name string) (*model.ChatSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("session name must not be empty: %w", ErrValidation)
	}
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rename(ctx, sessionID, userID, name); err != nil {
		return nil, fmt.Errorf("rename session: %v: %w", err, ErrPersistence)
	}
	session.Name = name
	return session, nil
}

// DeleteSession removes the session with its messages and document links.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.sessions.DeleteByIDAndUserID(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %v: %w", err, ErrPersistence)
	}
	if s.history != nil {
		_ = s.history.DeleteHistory(ctx, sessionID)
	}
	return nil
}

func (s *ChatService) ownedSession(ctx context.Context, userID, sessionID uint) (*model.ChatSession, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrValidation
	}
	session, err := s.sessions.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %v: %w", err, ErrPersistence)
	}
	if session == nil {
		return nil, fmt.Errorf("chat session %d: %w", sessionID, ErrNotFound)
	}
	return session, nil
}
