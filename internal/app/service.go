package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"bridge/api/internal/annotate"
	"bridge/api/internal/cache"
	"bridge/api/internal/config"
	"bridge/api/internal/detect"
	"bridge/api/internal/docs"
	"bridge/api/internal/gitrepo"
	"bridge/api/internal/match"
	"bridge/api/internal/oracle"
	"bridge/api/internal/search"
	"bridge/api/internal/store"
	"bridge/api/internal/util"
	"bridge/api/internal/webhook"
)

// Status texts returned by the selection trigger.
const (
	StatusTriggered = "LLM triggered."
	StatusDuplicate = "Skipped duplicate match."
)

const defaultHistoryLimit = 20

type matchResolver interface {
	Resolve(ctx context.Context, candidate, referenceDocID string) (match.Resolution, error)
}

type annotator interface {
	ClearHighlight(ctx context.Context, docID string, fullTextLen int) error
	ApplyHighlight(ctx context.Context, docID string, fullTextLen int, span match.Span) error
	AppendLogEntry(ctx context.Context, logDocID string, entry annotate.Entry) error
}

type notifier interface {
	Notify(ctx context.Context, title, text string) error
}

type eventStore interface {
	InsertMatchEvent(ctx context.Context, event store.MatchEvent) error
	ListMatchEvents(ctx context.Context, referenceDocID string, limit int) ([]store.MatchEvent, error)
}

type eventIndex interface {
	IndexEvent(event store.MatchEvent)
	Search(q search.Query) search.Response
}

type draftArchive interface {
	Record(snap gitrepo.Snapshot) (gitrepo.Commit, error)
	History(documentID string, limit int) ([]gitrepo.Commit, error)
	Snapshot(documentID, hash string) (gitrepo.Snapshot, error)
}

type pageMirror interface {
	Capture(ctx context.Context, url string) (bool, error)
	Match(ctx context.Context, draftText string) (string, error)
}

// Pinger is a backend that readiness checks can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Service. Docs, Oracle and Cache are
// required; the rest are optional and disabled when nil.
type Deps struct {
	Docs     docs.Store
	Oracle   oracle.Oracle
	Cache    cache.Store
	Notifier notifier
	Events   eventStore
	Index    eventIndex
	Archive  draftArchive
	Mirror   pageMirror
	// Ready maps a check name to the backend it pings.
	Ready  map[string]Pinger
	Logger *log.Logger
}

// Service runs the poll loop and the selection trigger and owns the
// shared poll state.
type Service struct {
	cfg       config.Config
	docs      docs.Store
	detector  *detect.Detector
	resolver  matchResolver
	annotator annotator
	cache     cache.Store
	notifier  notifier
	events    eventStore
	index     eventIndex
	archive   draftArchive
	mirror    pageMirror
	ready     map[string]Pinger
	logger    *log.Logger

	mu            sync.Mutex
	lastTriggered string
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	location, err := time.LoadLocation(cfg.LogTimeZone)
	if err != nil {
		logger.Warn("unknown log time zone, using UTC", "zone", cfg.LogTimeZone, "err", err)
		location = time.UTC
	}
	return &Service{
		cfg:       cfg,
		docs:      deps.Docs,
		detector:  detect.New(),
		resolver:  match.NewResolver(deps.Docs, deps.Oracle, cfg.StrictMatchKinds),
		annotator: annotate.NewApplier(deps.Docs, location),
		cache:     deps.Cache,
		events:    deps.Events,
		index:     deps.Index,
		archive:   deps.Archive,
		mirror:    deps.Mirror,
		notifier:  deps.Notifier,
		ready:     deps.Ready,
		logger:    logger,
	}
}

// Run polls the draft every cfg.PollInterval until ctx is done. A failed
// tick is logged and the next tick proceeds independently.
func (s *Service) Run(ctx context.Context) {
	logger := s.logger.WithPrefix("poll")
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("poll tick failed", "err", err)
			}
		}
	}
}

// PollOnce fetches the draft, detects the changed paragraph and, when it
// differs from the last triggered one, runs a sweep.
func (s *Service) PollOnce(ctx context.Context) error {
	draft, err := s.docs.Fetch(ctx, s.cfg.DraftDocID)
	if err != nil {
		return fmt.Errorf("fetch draft: %w", err)
	}
	candidate, ok := s.detector.Detect(draft.Body)
	if !ok {
		return nil
	}
	if s.isLastTriggered(candidate) {
		s.logger.Debug("changed paragraph already matched", "paragraph", candidate)
		return nil
	}
	return s.sweep(ctx, candidate, draft, store.TriggerPoll)
}

// TriggerSelection runs a sweep for the first draft paragraph containing
// selected. It returns StatusDuplicate when that paragraph was the last one
// matched, ErrMissingSelection for an empty selection and ErrNoParagraph
// when no paragraph contains it.
func (s *Service) TriggerSelection(ctx context.Context, selected string) (string, error) {
	if selected == "" {
		return "", ErrMissingSelection
	}
	draft, err := s.docs.Fetch(ctx, s.cfg.DraftDocID)
	if err != nil {
		return "", fmt.Errorf("fetch draft: %w", err)
	}

	paragraph := ""
	for _, p := range docs.Paragraphs(draft.Body) {
		if strings.Contains(p, selected) {
			paragraph = p
			break
		}
	}
	if strings.TrimSpace(paragraph) == "" {
		return "", ErrNoParagraph
	}
	if s.isLastTriggered(paragraph) {
		return StatusDuplicate, nil
	}
	if err := s.sweep(ctx, paragraph, draft, store.TriggerSelection); err != nil {
		return "", err
	}
	return StatusTriggered, nil
}

// LastTriggered returns the paragraph of the last completed sweep.
func (s *Service) LastTriggered() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTriggered
}

func (s *Service) isLastTriggered(paragraph string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTriggered == paragraph
}

func (s *Service) setLastTriggered(paragraph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTriggered = paragraph
}

// sweep resolves candidate against every reference document in configured
// order. A malformed or empty oracle response skips that document; any other
// error abandons the sweep and leaves the last triggered paragraph unchanged.
// The detector has already recorded the draft by then, so polling does not
// retry an abandoned change; a manual selection of the paragraph still can.
func (s *Service) sweep(ctx context.Context, candidate string, draft docs.Document, trigger string) error {
	logger := s.logger.WithPrefix("sweep")
	logger.Info("matching paragraph", "trigger", trigger, "paragraph", candidate)
	s.archiveDraft(candidate, draft, trigger)

	for _, refID := range s.cfg.ReferenceDocIDs {
		title, ok := s.cfg.ReferenceTitle(refID)
		if !ok {
			logger.Warn("no title configured for reference document", "doc", refID)
		}

		res, err := s.resolver.Resolve(ctx, candidate, refID)
		if errors.Is(err, match.ErrMalformedResponse) {
			logger.Warn("skipping reference document", "doc", refID, "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve %s: %w", refID, err)
		}

		if err := s.apply(ctx, sweepItem{
			candidate: candidate,
			draftID:   s.cfg.DraftDocID,
			refID:     refID,
			title:     title,
			trigger:   trigger,
			res:       res,
		}); err != nil {
			return fmt.Errorf("apply %s: %w", refID, err)
		}
	}

	s.setLastTriggered(candidate)
	return nil
}

type sweepItem struct {
	candidate string
	draftID   string
	refID     string
	title     string
	trigger   string
	res       match.Resolution
}

// apply commits one resolution: cache entry, then highlight, then the
// best-effort log entry, webhook and audit record.
func (s *Service) apply(ctx context.Context, item sweepItem) error {
	verdict := item.res.Verdict
	fullTextLen := docs.UTF16Len(item.res.FullText)
	logger := s.logger.With("doc", item.refID)

	if !verdict.Accepted {
		note := verdict.NoteOr(match.DefaultRejectNote)
		logger.Info("no match", "kind", verdict.Kind, "reason", verdict.Reason)
		if err := s.cache.Record(ctx, item.refID, cache.Rejected(note)); err != nil {
			return err
		}
		if s.cfg.ClearOnReject {
			if err := s.annotator.ClearHighlight(ctx, item.refID, fullTextLen); err != nil {
				return fmt.Errorf("clear highlight: %w", err)
			}
		}
		if s.cfg.LogRejections {
			s.appendLog(ctx, item, note)
		}
		s.recordEvent(ctx, item)
		return nil
	}

	if err := s.cache.Record(ctx, item.refID, cache.Accepted(verdict.Clause, verdict.Note)); err != nil {
		return err
	}
	if loc := item.res.Location; loc != nil {
		if err := s.annotator.ApplyHighlight(ctx, item.refID, fullTextLen, loc.Span); err != nil {
			return fmt.Errorf("apply highlight: %w", err)
		}
		logger.Info("highlighted clause", "kind", verdict.Kind, "pass", loc.Pass, "start", loc.Span.Start+1, "end", loc.Span.End+1)
	} else {
		logger.Warn("clause not found in reference text, highlight skipped", "kind", verdict.Kind)
	}

	s.appendLog(ctx, item, verdict.NoteOr(""))
	s.notify(ctx, item)
	s.recordEvent(ctx, item)
	return nil
}

func (s *Service) appendLog(ctx context.Context, item sweepItem, note string) {
	err := s.annotator.AppendLogEntry(ctx, s.cfg.LogDocID, annotate.Entry{
		ReferenceTitle: item.title,
		Candidate:      item.candidate,
		Kind:           item.res.Verdict.Kind,
		Clause:         item.res.Verdict.Clause,
		Note:           note,
	})
	if err != nil {
		s.logger.Warn("log entry not written", "doc", item.refID, "err", err)
	}
}

func (s *Service) notify(ctx context.Context, item sweepItem) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, item.title, item.res.Verdict.Clause)
	switch {
	case errors.Is(err, webhook.ErrNoRoute):
		s.logger.Warn("no webhook route for reference title", "title", item.title)
	case err != nil:
		s.logger.Warn("webhook push failed", "title", item.title, "err", err)
	}
}

func (s *Service) recordEvent(ctx context.Context, item sweepItem) {
	if s.events == nil && s.index == nil {
		return
	}
	verdict := item.res.Verdict
	event := store.MatchEvent{
		ID:             util.NewID("mev"),
		DraftDocID:     item.draftID,
		ReferenceDocID: item.refID,
		ReferenceTitle: item.title,
		Trigger:        item.trigger,
		Candidate:      item.candidate,
		Kind:           string(verdict.Kind),
		Accepted:       verdict.Accepted,
		Note:           verdict.Note,
		CreatedAt:      time.Now().UTC(),
	}
	if verdict.Accepted {
		clause := verdict.Clause
		event.Clause = &clause
	}
	if loc := item.res.Location; loc != nil {
		start, end, pass := loc.Span.Start, loc.Span.End, string(loc.Pass)
		event.SpanStart, event.SpanEnd, event.LocatePass = &start, &end, &pass
	}

	if s.events != nil {
		if err := s.events.InsertMatchEvent(ctx, event); err != nil {
			s.logger.Warn("audit record not written", "doc", item.refID, "err", err)
		}
	}
	if s.index != nil {
		s.index.IndexEvent(event)
	}
}

func (s *Service) archiveDraft(candidate string, draft docs.Document, trigger string) {
	if s.archive == nil {
		return
	}
	_, err := s.archive.Record(gitrepo.Snapshot{
		DocumentID: s.cfg.DraftDocID,
		Trigger:    trigger,
		Candidate:  candidate,
		Paragraphs: docs.Paragraphs(draft.Body),
	})
	if err != nil {
		s.logger.Warn("draft snapshot not recorded", "err", err)
	}
}

// LookupMatch returns the cached verdict for a reference document.
func (s *Service) LookupMatch(ctx context.Context, docID string) (cache.Entry, error) {
	if docID == "" {
		return cache.Entry{}, nil
	}
	return s.cache.Lookup(ctx, docID)
}

// DraftText returns the draft's text with one line per block.
func (s *Service) DraftText(ctx context.Context) (string, error) {
	draft, err := s.docs.Fetch(ctx, s.cfg.DraftDocID)
	if err != nil {
		return "", fmt.Errorf("fetch draft: %w", err)
	}
	return docs.FullText(draft.Body), nil
}

func (s *Service) CaptureMirror(ctx context.Context, url string) (bool, error) {
	if s.mirror == nil {
		return false, unavailable("file mirror")
	}
	return s.mirror.Capture(ctx, url)
}

// MatchMirror matches the draft text against every mirrored page.
func (s *Service) MatchMirror(ctx context.Context) (string, error) {
	if s.mirror == nil {
		return "", unavailable("file mirror")
	}
	text, err := s.DraftText(ctx)
	if err != nil {
		return "", err
	}
	return s.mirror.Match(ctx, text)
}

func (s *Service) MatchHistory(ctx context.Context, referenceDocID string, limit int) ([]store.MatchEvent, error) {
	if s.events == nil {
		return nil, unavailable("match history")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.events.ListMatchEvents(ctx, referenceDocID, limit)
}

func (s *Service) SearchMatches(q search.Query) search.Response {
	if s.index == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.index.Search(q)
}

func (s *Service) DraftHistory(limit int) ([]gitrepo.Commit, error) {
	if s.archive == nil {
		return nil, unavailable("draft archive")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.archive.History(s.cfg.DraftDocID, limit)
}

// DraftSnapshot returns the archived draft at hash.
func (s *Service) DraftSnapshot(hash string) (gitrepo.Snapshot, error) {
	if s.archive == nil {
		return gitrepo.Snapshot{}, unavailable("draft archive")
	}
	return s.archive.Snapshot(s.cfg.DraftDocID, hash)
}

// Ping probes every readiness backend and returns the failures by name.
func (s *Service) Ping(ctx context.Context) map[string]error {
	failures := map[string]error{}
	for name, backend := range s.ready {
		if err := backend.Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

// ReadyChecks lists the configured readiness check names.
func (s *Service) ReadyChecks() []string {
	names := make([]string, 0, len(s.ready))
	for name := range s.ready {
		names = append(names, name)
	}
	return names
}
