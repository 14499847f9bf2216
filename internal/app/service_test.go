package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bridge/api/internal/cache"
	"bridge/api/internal/config"
	"bridge/api/internal/docs"
	"bridge/api/internal/gitrepo"
	"bridge/api/internal/logging"
	"bridge/api/internal/oracle"
	"bridge/api/internal/search"
	"bridge/api/internal/store"
)

const (
	refPricing = "Intro\nPricing is value-based and fair.\nEnd"
	refTerms   = "Terms apply.\nPayment is due monthly."
)

type styleCall struct {
	docID string
	edits []docs.StyleEdit
}

type insertCall struct {
	docID string
	index int
	text  string
}

type fakeDocs struct {
	mu       sync.Mutex
	docs     map[string]docs.Document
	fetchErr error
	styles   []styleCall
	inserts  []insertCall
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]docs.Document{
		"ref1": {ID: "ref1", Body: bodyOf(strings.Split(refPricing, "\n")...)},
		"ref2": {ID: "ref2", Body: bodyOf(strings.Split(refTerms, "\n")...)},
	}}
}

func bodyOf(paragraphs ...string) docs.Body {
	body := make(docs.Body, 0, len(paragraphs))
	for _, p := range paragraphs {
		body = append(body, docs.Block{Paragraph: &docs.Paragraph{Runs: []docs.Run{{Text: p + "\n"}}}})
	}
	return body
}

func (f *fakeDocs) setDraft(paragraphs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs["draft"] = docs.Document{ID: "draft", Body: bodyOf(paragraphs...)}
}

func (f *fakeDocs) Fetch(_ context.Context, docID string) (docs.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return docs.Document{}, f.fetchErr
	}
	doc, ok := f.docs[docID]
	if !ok {
		return docs.Document{}, docs.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocs) ApplyStyleEdits(_ context.Context, docID string, edits []docs.StyleEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styles = append(f.styles, styleCall{docID: docID, edits: edits})
	return nil
}

func (f *fakeDocs) InsertText(_ context.Context, docID string, index int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, insertCall{docID: docID, index: index, text: text})
	return nil
}

func (f *fakeDocs) stylesFor(docID string) []styleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []styleCall
	for _, call := range f.styles {
		if call.docID == docID {
			out = append(out, call)
		}
	}
	return out
}

// scriptedOracle answers by reference text and counts calls.
type scriptedOracle struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     int
}

func (o *scriptedOracle) Analyze(_ context.Context, req oracle.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err := o.errs[req.ReferenceText]; err != nil {
		return "", err
	}
	return o.responses[req.ReferenceText], nil
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type notification struct {
	title string
	text  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, title, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title: title, text: text})
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []store.MatchEvent
}

func (f *fakeEvents) InsertMatchEvent(_ context.Context, event store.MatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) ListMatchEvents(_ context.Context, referenceDocID string, limit int) ([]store.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MatchEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if referenceDocID == "" || f.events[i].ReferenceDocID == referenceDocID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

type fakeArchive struct {
	snaps []gitrepo.Snapshot
}

func (f *fakeArchive) Record(snap gitrepo.Snapshot) (gitrepo.Commit, error) {
	f.snaps = append(f.snaps, snap)
	return gitrepo.Commit{Hash: "abc1234", Message: snap.Trigger}, nil
}

func (f *fakeArchive) History(string, int) ([]gitrepo.Commit, error) {
	commits := make([]gitrepo.Commit, 0, len(f.snaps))
	for range f.snaps {
		commits = append(commits, gitrepo.Commit{Hash: "abc1234"})
	}
	return commits, nil
}

func (f *fakeArchive) Snapshot(_ string, hash string) (gitrepo.Snapshot, error) {
	if hash != "abc1234" || len(f.snaps) == 0 {
		return gitrepo.Snapshot{}, gitrepo.ErrSnapshotNotFound
	}
	return f.snaps[len(f.snaps)-1], nil
}

func testConfig() config.Config {
	return config.Config{
		DraftDocID:      "draft",
		ReferenceDocIDs: []string{"ref1", "ref2"},
		ReferenceTitles: []string{"Tab1", "Tab2"},
		LogDocID:        "log",
		PollInterval:    time.Second,
		ClearOnReject:   true,
		LogTimeZone:     "UTC",
	}
}

type harness struct {
	service  *Service
	docs     *fakeDocs
	oracle   *scriptedOracle
	cache    *cache.Memory
	notifier *fakeNotifier
	events   *fakeEvents
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	h := &harness{
		docs: newFakeDocs(),
		oracle: &scriptedOracle{
			responses: map[string]string{
				refPricing: `{"Type of match found":"GOOD_EVIDENCE","Reference Clause":"Pricing is value-based and fair."}`,
				refTerms:   `{"Type of match found":"No Match","Reference Clause":"N/A"}`,
			},
			errs: map[string]error{},
		},
		cache:    cache.NewMemory(),
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
	}
	h.docs.setDraft("Title", "Our pricing is fair.")
	h.service = New(cfg, Deps{
		Docs:     h.docs,
		Oracle:   h.oracle,
		Cache:    h.cache,
		Notifier: h.notifier,
		Events:   h.events,
		Logger:   logging.Discard(),
	})
	return h
}

func TestPollOnceColdStartDoesNotSweep(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.service.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if h.oracle.callCount() != 0 {
		t.Fatalf("first poll should only seed, got %d oracle calls", h.oracle.callCount())
	}
	if err := h.service.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if h.oracle.callCount() != 0 {
		t.Fatalf("unchanged draft should not sweep, got %d oracle calls", h.oracle.callCount())
	}
}

func TestPollOnceSweepsChangedParagraph(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("seed poll error = %v", err)
	}
	h.docs.setDraft("Title", "Our pricing is unilateral.")
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	if got := h.service.LastTriggered(); got != "Our pricing is unilateral." {
		t.Fatalf("LastTriggered() = %q", got)
	}
	if h.oracle.callCount() != 2 {
		t.Fatalf("expected one oracle call per reference, got %d", h.oracle.callCount())
	}

	styles := h.docs.stylesFor("ref1")
	if len(styles) != 1 || len(styles[0].edits) != 2 {
		t.Fatalf("expected a clear + highlight batch on ref1, got %+v", styles)
	}
	fullLen := docs.UTF16Len(refPricing)
	if styles[0].edits[0] != (docs.StyleEdit{Start: 1, End: fullLen + 1}) {
		t.Errorf("clear range = %+v", styles[0].edits[0])
	}
	highlight := styles[0].edits[1]
	if highlight.Start != 7 || highlight.End != 39 || highlight.Background == nil {
		t.Errorf("highlight = %+v, want [7,39) colored", highlight)
	}

	rejected := h.docs.stylesFor("ref2")
	if len(rejected) != 1 || len(rejected[0].edits) != 1 || rejected[0].edits[0].Background != nil {
		t.Errorf("rejected reference should be cleared, got %+v", rejected)
	}

	if len(h.docs.inserts) != 1 || h.docs.inserts[0].docID != "log" || h.docs.inserts[0].index != 1 {
		t.Fatalf("expected one log entry for the accepted match, got %+v", h.docs.inserts)
	}
	if !strings.Contains(h.docs.inserts[0].text, "Reference Document: Tab1") {
		t.Errorf("log entry missing title: %q", h.docs.inserts[0].text)
	}

	if len(h.notifier.sent) != 1 || h.notifier.sent[0] != (notification{title: "Tab1", text: "Pricing is value-based and fair."}) {
		t.Errorf("unexpected notifications %+v", h.notifier.sent)
	}

	accepted, _ := h.cache.Lookup(ctx, "ref1")
	if accepted.Match == nil || *accepted.Match != "Pricing is value-based and fair." {
		t.Errorf("ref1 cache entry = %+v", accepted)
	}
	rejectedEntry, _ := h.cache.Lookup(ctx, "ref2")
	if rejectedEntry.Match != nil || rejectedEntry.Note == nil || *rejectedEntry.Note == "" {
		t.Errorf("ref2 cache entry = %+v", rejectedEntry)
	}

	if len(h.events.events) != 2 {
		t.Fatalf("expected an audit record per reference, got %d", len(h.events.events))
	}
	first := h.events.events[0]
	if first.Trigger != store.TriggerPoll || !first.Accepted || first.SpanStart == nil || *first.SpanStart != 6 {
		t.Errorf("unexpected accepted event %+v", first)
	}
}

func TestPollThenSelectionRunsOneSweep(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	_ = h.service.PollOnce(ctx)
	h.docs.setDraft("Title", "Our pricing is unilateral.")
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}

	status, err := h.service.TriggerSelection(ctx, "pricing is")
	if err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if status != StatusDuplicate {
		t.Errorf("status = %q, want %q", status, StatusDuplicate)
	}
	if h.oracle.callCount() != 2 {
		t.Errorf("expected a single sweep, got %d oracle calls", h.oracle.callCount())
	}
}

func TestSelectionThenPollRunsOneSweep(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	_ = h.service.PollOnce(ctx)
	h.docs.setDraft("Title", "Our pricing is unilateral.")

	status, err := h.service.TriggerSelection(ctx, "unilateral")
	if err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if status != StatusTriggered {
		t.Fatalf("status = %q, want %q", status, StatusTriggered)
	}
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if h.oracle.callCount() != 2 {
		t.Errorf("expected a single sweep, got %d oracle calls", h.oracle.callCount())
	}
	if h.events.events[0].Trigger != store.TriggerSelection {
		t.Errorf("trigger = %q", h.events.events[0].Trigger)
	}
}

func TestTriggerSelectionErrors(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	if _, err := h.service.TriggerSelection(ctx, ""); !errors.Is(err, ErrMissingSelection) {
		t.Errorf("empty selection error = %v", err)
	}
	if _, err := h.service.TriggerSelection(ctx, "not in the draft"); !errors.Is(err, ErrNoParagraph) {
		t.Errorf("unknown selection error = %v", err)
	}
	if h.oracle.callCount() != 0 {
		t.Errorf("errors should not reach the oracle")
	}
}

func TestSweepSkipsMalformedResponse(t *testing.T) {
	h := newHarness(t, testConfig())
	h.oracle.responses[refPricing] = "I could not decide."
	h.oracle.responses[refTerms] = "```json\n{\"Type of match found\":\"PARTIAL_MATCH\",\"Reference Clause\":\"Payment is due monthly.\"}\n```"

	status, err := h.service.TriggerSelection(context.Background(), "pricing")
	if err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if status != StatusTriggered {
		t.Errorf("status = %q", status)
	}
	if styles := h.docs.stylesFor("ref1"); len(styles) != 0 {
		t.Errorf("malformed reference should be untouched, got %+v", styles)
	}
	if styles := h.docs.stylesFor("ref2"); len(styles) != 1 || len(styles[0].edits) != 2 {
		t.Errorf("second reference should be highlighted, got %+v", styles)
	}
	if entry, _ := h.cache.Lookup(context.Background(), "ref1"); entry.Match != nil || entry.Note != nil {
		t.Errorf("malformed reference should not be cached, got %+v", entry)
	}
	if h.service.LastTriggered() == "" {
		t.Errorf("sweep should complete")
	}
}

func TestSweepSkipsEmptyResponse(t *testing.T) {
	h := newHarness(t, testConfig())
	h.oracle.errs[refPricing] = oracle.ErrEmptyResponse
	h.oracle.responses[refTerms] = `{"Type of match found":"PARTIAL_MATCH","Reference Clause":"Payment is due monthly."}`

	status, err := h.service.TriggerSelection(context.Background(), "pricing")
	if err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if status != StatusTriggered {
		t.Errorf("status = %q", status)
	}
	if h.oracle.callCount() != 2 {
		t.Errorf("sweep should reach every reference, got %d calls", h.oracle.callCount())
	}
	if styles := h.docs.stylesFor("ref2"); len(styles) != 1 || len(styles[0].edits) != 2 {
		t.Errorf("second reference should be highlighted, got %+v", styles)
	}
	if h.service.LastTriggered() != "Our pricing is fair." {
		t.Errorf("LastTriggered() = %q", h.service.LastTriggered())
	}
}

func TestSweepAbortsOnTransportError(t *testing.T) {
	h := newHarness(t, testConfig())
	h.oracle.errs[refPricing] = errors.New("connection refused")

	_, err := h.service.TriggerSelection(context.Background(), "pricing")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected transport error, got %v", err)
	}
	if h.oracle.callCount() != 1 {
		t.Errorf("sweep should stop at the failing reference, got %d calls", h.oracle.callCount())
	}
	if got := h.service.LastTriggered(); got != "" {
		t.Errorf("LastTriggered() = %q after failed sweep", got)
	}
}

func TestAbandonedChangeIsNotRetriedByPolling(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	_ = h.service.PollOnce(ctx)
	h.docs.setDraft("Title", "Our pricing is unilateral.")
	h.oracle.errs[refPricing] = errors.New("connection refused")

	if err := h.service.PollOnce(ctx); err == nil {
		t.Fatal("expected the sweep to fail")
	}
	delete(h.oracle.errs, refPricing)
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if h.oracle.callCount() != 1 {
		t.Fatalf("polling should not retry the recorded change, got %d calls", h.oracle.callCount())
	}

	status, err := h.service.TriggerSelection(ctx, "unilateral")
	if err != nil || status != StatusTriggered {
		t.Fatalf("manual retry = %q, %v", status, err)
	}
	if h.service.LastTriggered() != "Our pricing is unilateral." {
		t.Errorf("LastTriggered() = %q", h.service.LastTriggered())
	}
}

func TestRejectionWithoutClear(t *testing.T) {
	cfg := testConfig()
	cfg.ClearOnReject = false
	cfg.LogRejections = true
	h := newHarness(t, cfg)
	h.oracle.responses[refTerms] = `{"Type of match found":"No Match","Reference Clause":"N/A","Note":"Unrelated."}`

	if _, err := h.service.TriggerSelection(context.Background(), "pricing"); err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if styles := h.docs.stylesFor("ref2"); len(styles) != 0 {
		t.Errorf("ref2 should keep its highlight, got %+v", styles)
	}
	entry, _ := h.cache.Lookup(context.Background(), "ref2")
	if entry.Note == nil || *entry.Note != "Unrelated." {
		t.Errorf("ref2 note = %+v", entry.Note)
	}
	if len(h.docs.inserts) != 2 || !strings.Contains(h.docs.inserts[1].text, "Match Status: No Match") {
		t.Errorf("rejection should be logged, got %+v", h.docs.inserts)
	}
	if len(h.notifier.sent) != 1 {
		t.Errorf("rejections should not notify, got %+v", h.notifier.sent)
	}
}

func TestUnlocatableClauseStillLogsAndNotifies(t *testing.T) {
	h := newHarness(t, testConfig())
	h.oracle.responses[refPricing] = `{"Type of match found":"GOOD_EVIDENCE","Reference Clause":"A sentence that is nowhere in the text."}`

	if _, err := h.service.TriggerSelection(context.Background(), "pricing"); err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if styles := h.docs.stylesFor("ref1"); len(styles) != 0 {
		t.Errorf("unlocated clause should not be highlighted, got %+v", styles)
	}
	if len(h.docs.inserts) != 1 {
		t.Errorf("expected a log entry, got %d", len(h.docs.inserts))
	}
	if len(h.notifier.sent) != 1 || h.notifier.sent[0].text != "A sentence that is nowhere in the text." {
		t.Errorf("unexpected notifications %+v", h.notifier.sent)
	}
	entry, _ := h.cache.Lookup(context.Background(), "ref1")
	if entry.Match == nil {
		t.Errorf("accepted verdict should be cached")
	}
	if h.events.events[0].SpanStart != nil {
		t.Errorf("event should carry no span")
	}
}

func TestMissingTitleUsesEmptyTitle(t *testing.T) {
	cfg := testConfig()
	cfg.ReferenceTitles = nil
	h := newHarness(t, cfg)

	if _, err := h.service.TriggerSelection(context.Background(), "pricing"); err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if len(h.notifier.sent) != 1 || h.notifier.sent[0].title != "" {
		t.Errorf("unexpected notifications %+v", h.notifier.sent)
	}
	if !strings.Contains(h.docs.inserts[0].text, "Reference Document: \n") {
		t.Errorf("log entry = %q", h.docs.inserts[0].text)
	}
}

func TestSweepArchivesDraft(t *testing.T) {
	h := newHarness(t, testConfig())
	archive := &fakeArchive{}
	h.service.archive = archive

	if _, err := h.service.TriggerSelection(context.Background(), "pricing"); err != nil {
		t.Fatalf("TriggerSelection() error = %v", err)
	}
	if len(archive.snaps) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(archive.snaps))
	}
	snap := archive.snaps[0]
	if snap.DocumentID != "draft" || snap.Trigger != store.TriggerSelection || len(snap.Paragraphs) != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	commits, err := h.service.DraftHistory(0)
	if err != nil || len(commits) != 1 {
		t.Errorf("DraftHistory() = %v, %v", commits, err)
	}
}

func TestOptionalFeaturesUnavailable(t *testing.T) {
	h := newHarness(t, testConfig())
	h.service.events = nil
	ctx := context.Background()

	var domainErr *DomainError
	if _, err := h.service.MatchHistory(ctx, "", 0); !errors.As(err, &domainErr) || domainErr.Status != 503 {
		t.Errorf("MatchHistory() error = %v", err)
	}
	if _, err := h.service.DraftHistory(0); !errors.As(err, &domainErr) || domainErr.Status != 503 {
		t.Errorf("DraftHistory() error = %v", err)
	}
	if _, err := h.service.CaptureMirror(ctx, "file:///tmp/a.html"); !errors.As(err, &domainErr) || domainErr.Status != 503 {
		t.Errorf("CaptureMirror() error = %v", err)
	}
	resp := h.service.SearchMatches(search.Query{Text: "pricing"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("SearchMatches() without an index = %+v", resp)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.service.PollOnce(ctx); err != nil {
		t.Fatalf("seed poll error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		h.service.Run(ctx)
		close(done)
	}()

	h.docs.setDraft("Title", "Our pricing is unilateral.")
	deadline := time.After(2 * time.Second)
	for h.service.LastTriggered() == "" {
		select {
		case <-deadline:
			t.Fatal("poll loop never swept the change")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
