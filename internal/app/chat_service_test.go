package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

type fakeSessions struct {
	nextID   uint
	sessions map[uint]*model.ChatSession
	created  []*model.ChatSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{nextID: 1, sessions: make(map[uint]*model.ChatSession)}
}

func (f *fakeSessions) Create(_ context.Context, session *model.ChatSession) error {
	session.ID = f.nextID
	f.nextID++
	f.sessions[session.ID] = session
	f.created = append(f.created, session)
	return nil
}

func (f *fakeSessions) GetByIDAndUserID(_ context.Context, sessionID, userID uint) (*model.ChatSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSessions) ListByUserID(_ context.Context, userID uint) ([]repository.SessionSummary, error) {
	var out []repository.SessionSummary
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, repository.SessionSummary{ChatSession: *s})
		}
	}
	return out, nil
}

func (f *fakeSessions) Rename(_ context.Context, sessionID, userID uint, name string) error {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return errors.New("not found")
	}
	s.Name = name
	return nil
}

func (f *fakeSessions) DeleteByIDAndUserID(_ context.Context, sessionID, userID uint) error {
	delete(f.sessions, sessionID)
	return nil
}

type fakeMessages struct {
	recent []model.ChatMessage
}

func (f *fakeMessages) ListRecentBySessionID(_ context.Context, _ uint, _ int) ([]model.ChatMessage, error) {
	return f.recent, nil
}

func (f *fakeMessages) ListBySessionID(_ context.Context, _ uint) ([]model.ChatMessage, error) {
	return f.recent, nil
}

type fakeLinks struct {
	docIDs []uint
}

func (f *fakeLinks) ListDocumentIDs(_ context.Context, _ uint) ([]uint, error) {
	return f.docIDs, nil
}

type fakeSegments struct {
	hits       []repository.SegmentHit
	lastFilter repository.SegmentFilter
	lastTopN   int
}

func (f *fakeSegments) Search(_ context.Context, _ []float32, topN int, filter repository.SegmentFilter) ([]repository.SegmentHit, error) {
	f.lastTopN = topN
	f.lastFilter = filter
	return f.hits, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// fakeGenerator replays a fixed token sequence, then an optional error. It
// honors context cancellation the way the HTTP client does.
type fakeGenerator struct {
	tokens     []string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) Stream(_ context.Context, prompt string) (<-chan string, <-chan error) {
	f.lastPrompt = prompt
	tokens := make(chan string, len(f.tokens))
	errs := make(chan error, 1)
	for _, t := range f.tokens {
		tokens <- t
	}
	if f.err != nil {
		errs <- f.err
	}
	close(tokens)
	close(errs)
	return tokens, errs
}

type fakeWebSearcher struct {
	snippet string
	err     error
	calls   int
}

func (f *fakeWebSearcher) Search(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.snippet, f.err
}

type fakeRecorder struct {
	turns []model.Turn
	err   error
}

func (f *fakeRecorder) Publish(_ context.Context, turn model.Turn) error {
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turn)
	return nil
}

// recordingEmitter captures the ordered event stream. failAtChunk, when
// positive, makes the Nth AnswerChunk call fail. cancelAtChunk, when
// positive, cancels the request context after the Nth chunk is delivered.
type recordingEmitter struct {
	events        []string
	meta          StreamMetadata
	chunkCalls    int
	failAtChunk   int
	cancelAtChunk int
	cancel        context.CancelFunc
}

func (e *recordingEmitter) Metadata(meta StreamMetadata) error {
	e.meta = meta
	e.events = append(e.events, "metadata")
	return nil
}

func (e *recordingEmitter) AnswerChunk(text string) error {
	e.chunkCalls++
	if e.failAtChunk > 0 && e.chunkCalls >= e.failAtChunk {
		return errors.New("write: broken pipe")
	}
	e.events = append(e.events, "chunk:"+text)
	if e.cancelAtChunk > 0 && e.chunkCalls >= e.cancelAtChunk && e.cancel != nil {
		e.cancel()
	}
	return nil
}

func (e *recordingEmitter) Done() error {
	e.events = append(e.events, "done")
	return nil
}

func (e *recordingEmitter) Error(message string) error {
	e.events = append(e.events, "error:"+message)
	return nil
}

type chatFixture struct {
	svc      *ChatService
	sessions *fakeSessions
	segments *fakeSegments
	links    *fakeLinks
	embedder *fakeEmbedder
	gen      *fakeGenerator
	web      *fakeWebSearcher
	recorder *fakeRecorder
}

func newChatFixture(cfg ChatConfig) *chatFixture {
	f := &chatFixture{
		sessions: newFakeSessions(),
		segments: &fakeSegments{},
		links:    &fakeLinks{},
		embedder: &fakeEmbedder{vec: []float32{0.1, 0.2}},
		gen:      &fakeGenerator{tokens: []string{"Hello", " ", "world"}},
		web:      &fakeWebSearcher{snippet: "web answer"},
		recorder: &fakeRecorder{},
	}
	f.svc = NewChatService(ChatServiceDeps{
		Sessions:  f.sessions,
		Messages:  &fakeMessages{},
		Links:     f.links,
		Segments:  f.segments,
		Embedder:  f.embedder,
		Generator: f.gen,
		Searcher:  f.web,
		Turns:     f.recorder,
		Config:    cfg,
	})
	return f
}

func (f *chatFixture) seedSession(userID uint) *model.ChatSession {
	s := &model.ChatSession{UserID: userID, Name: "existing"}
	_ = f.sessions.Create(context.Background(), s)
	return s
}

func TestStreamChatEmitsMetadataFirstThenChunksThenDone(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(7)
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 7, Query: "what is go?", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	want := []string{"metadata", "chunk:Hello", "chunk: ", "chunk:world", "done"}
	if len(emitter.events) != len(want) {
		t.Fatalf("events = %v, want %v", emitter.events, want)
	}
	for i, e := range want {
		if emitter.events[i] != e {
			t.Fatalf("event[%d] = %q, want %q", i, emitter.events[i], e)
		}
	}
	if emitter.meta.ChatSessionID != session.ID {
		t.Errorf("metadata session id = %d, want %d", emitter.meta.ChatSessionID, session.ID)
	}
	if emitter.meta.Search != "" {
		t.Errorf("metadata search = %q, want empty without search mode", emitter.meta.Search)
	}
}

func TestStreamChatPersistsFullTurn(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(3)

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 3, Query: "  question  ", SessionID: session.ID}, &recordingEmitter{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if len(f.recorder.turns) != 1 {
		t.Fatalf("recorded %d turns, want 1", len(f.recorder.turns))
	}
	turn := f.recorder.turns[0]
	if turn.Query != "question" {
		t.Errorf("turn query = %q, want trimmed %q", turn.Query, "question")
	}
	if turn.Answer != "Hello world" {
		t.Errorf("turn answer = %q, want %q", turn.Answer, "Hello world")
	}
	if turn.SessionID != session.ID || turn.UserID != 3 {
		t.Errorf("turn identity = (%d,%d), want (%d,3)", turn.SessionID, turn.UserID, session.ID)
	}
}

func TestStreamChatCreatesSessionWhenIDZero(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 9, Query: "hi"}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if len(f.sessions.created) != 1 {
		t.Fatalf("created %d sessions, want 1", len(f.sessions.created))
	}
	created := f.sessions.created[0]
	if created.UserID != 9 || created.Name != "New Chat" {
		t.Errorf("created session = %+v", created)
	}
	if emitter.meta.ChatSessionID != created.ID {
		t.Errorf("metadata session id = %d, want %d", emitter.meta.ChatSessionID, created.ID)
	}

	sessions, err := f.svc.ListSessions(context.Background(), 9)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	found := false
	for _, s := range sessions {
		if s.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("new session %d missing from session list", created.ID)
	}
}

func TestStreamChatRejectsForeignSession(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 2, Query: "hi", SessionID: session.ID}, emitter)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(emitter.events) != 0 {
		t.Errorf("events emitted on failure: %v", emitter.events)
	}
}

func TestStreamChatRejectsBlankQuery(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "   "}, &recordingEmitter{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestStreamChatEmbedFailureBeforeAnyEvent(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	f.seedSession(1)
	f.embedder.err = errors.New("provider down")
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: 1}, emitter)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(emitter.events) != 0 {
		t.Errorf("events emitted before failure surfaced: %v", emitter.events)
	}
	if len(f.recorder.turns) != 0 {
		t.Errorf("turn recorded despite pre-stream failure")
	}
}

func TestStreamChatScopesSearchToSessionDocuments(t *testing.T) {
	f := newChatFixture(ChatConfig{TopN: 4})
	session := f.seedSession(5)
	f.links.docIDs = []uint{11, 12}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 5, Query: "hi", SessionID: session.ID}, &recordingEmitter{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if f.segments.lastFilter.UserID != 5 {
		t.Errorf("owner filter = %d, want 5", f.segments.lastFilter.UserID)
	}
	if len(f.segments.lastFilter.DocumentIDs) != 2 {
		t.Errorf("document filter = %v, want [11 12]", f.segments.lastFilter.DocumentIDs)
	}
	if f.segments.lastTopN != 4 {
		t.Errorf("topN = %d, want 4", f.segments.lastTopN)
	}
}

func TestStreamChatSearchModeIncludesWebSnippet(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	f.web.snippet = "current weather is sunny"
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "weather?", SessionID: session.ID, SearchMode: true}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if f.web.calls != 1 {
		t.Fatalf("web searcher calls = %d, want 1", f.web.calls)
	}
	if emitter.meta.Search != "current weather is sunny" {
		t.Errorf("metadata search = %q", emitter.meta.Search)
	}
	if !strings.Contains(f.gen.lastPrompt, "current weather is sunny") {
		t.Errorf("prompt missing web snippet:\n%s", f.gen.lastPrompt)
	}
}

func TestStreamChatWithoutSearchModeSkipsWebSearch(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, &recordingEmitter{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if f.web.calls != 0 {
		t.Errorf("web searcher called %d times without search mode", f.web.calls)
	}
}

func TestStreamChatSearchFailureDegradesToPlaceholder(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	f.web.err = errors.New("tavily timeout")
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID, SearchMode: true}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if emitter.events[len(emitter.events)-1] != "done" {
		t.Errorf("turn did not complete after search failure: %v", emitter.events)
	}
}

func TestStreamChatGenerationFailureEmitsErrorAndPersistsPartial(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	f.gen.tokens = []string{"par", "tial"}
	f.gen.err = errors.New("model overloaded")
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("StreamChat should report in-band after metadata, got %v", err)
	}

	last := emitter.events[len(emitter.events)-1]
	if !strings.HasPrefix(last, "error:") {
		t.Fatalf("last event = %q, want error event; all: %v", last, emitter.events)
	}
	for _, e := range emitter.events {
		if e == "done" {
			t.Fatalf("done emitted alongside error: %v", emitter.events)
		}
	}
	if len(f.recorder.turns) != 1 || f.recorder.turns[0].Answer != "partial" {
		t.Fatalf("partial answer not persisted: %+v", f.recorder.turns)
	}
}

func TestStreamChatClientDisconnectKeepsPartialAnswer(t *testing.T) {
	f := newChatFixture(ChatConfig{FlushBatch: 1})
	session := f.seedSession(1)
	f.gen.tokens = []string{"a", "b", "c", "d", "e"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emitter := &recordingEmitter{cancelAtChunk: 2, cancel: cancel}

	err := f.svc.StreamChat(ctx, StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	for _, e := range emitter.events {
		if e == "done" || strings.HasPrefix(e, "error:") {
			t.Fatalf("terminal event emitted after disconnect: %v", emitter.events)
		}
	}
	if len(f.recorder.turns) != 1 {
		t.Fatalf("recorded %d turns, want 1", len(f.recorder.turns))
	}
	if got := f.recorder.turns[0].Answer; got != "ab" {
		t.Errorf("persisted answer = %q, want %q", got, "ab")
	}
}

func TestStreamChatEmitterFailureStopsEventsNotAccumulation(t *testing.T) {
	f := newChatFixture(ChatConfig{FlushBatch: 1})
	session := f.seedSession(1)
	f.gen.tokens = []string{"x", "y", "z"}
	emitter := &recordingEmitter{failAtChunk: 2}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if len(f.recorder.turns) != 1 || f.recorder.turns[0].Answer != "xyz" {
		t.Fatalf("full answer not persisted after emitter failure: %+v", f.recorder.turns)
	}
	for _, e := range emitter.events {
		if e == "done" {
			t.Fatalf("done emitted to a broken client: %v", emitter.events)
		}
	}
}

func TestStreamChatRecorderFailureIsNotSurfaced(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	f.recorder.err = errors.New("queue unavailable")
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("recorder failure surfaced: %v", err)
	}
	if emitter.events[len(emitter.events)-1] != "done" {
		t.Errorf("stream did not finish cleanly: %v", emitter.events)
	}
}

func TestStreamChatPromptIncludesRetrievedSegmentsInRankOrder(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	f.segments.hits = []repository.SegmentHit{
		{Segment: model.Segment{Content: "first passage", Filename: "a.pdf"}, Distance: 0.1},
		{Segment: model.Segment{Content: "second passage", Filename: "b.pdf"}, Distance: 0.2},
	}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, &recordingEmitter{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	p := f.gen.lastPrompt
	i := strings.Index(p, "first passage")
	j := strings.Index(p, "second passage")
	if i < 0 || j < 0 || i > j {
		t.Errorf("segments missing or out of order in prompt (i=%d j=%d):\n%s", i, j, p)
	}
	if !strings.Contains(p, "[source: a.pdf]") {
		t.Errorf("prompt missing source label:\n%s", p)
	}
}

func TestRenameSessionValidatesName(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)

	if _, err := f.svc.RenameSession(context.Background(), 1, session.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	renamed, err := f.svc.RenameSession(context.Background(), 1, session.ID, "Project notes")
	if err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	if renamed.Name != "Project notes" {
		t.Errorf("name = %q", renamed.Name)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	if _, _, err := f.svc.GetSession(context.Background(), 1, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionRemovesIt(t *testing.T) {
	f := newChatFixture(ChatConfig{})
	session := f.seedSession(1)
	if err := f.svc.DeleteSession(context.Background(), 1, session.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := f.svc.DeleteSession(context.Background(), 1, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestStreamChatFlushesRemainderBelowBatchSize(t *testing.T) {
	f := newChatFixture(ChatConfig{FlushBatch: 5})
	session := f.seedSession(1)
	f.gen.tokens = []string{"only", " two"}
	emitter := &recordingEmitter{}

	err := f.svc.StreamChat(context.Background(), StreamRequest{UserID: 1, Query: "hi", SessionID: session.ID}, emitter)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	want := []string{"metadata", "chunk:only", "chunk: two", "done"}
	if fmt.Sprint(emitter.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", emitter.events, want)
	}
}
