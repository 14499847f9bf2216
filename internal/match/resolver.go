package match

import (
	"context"
	"errors"
	"fmt"

	"bridge/api/internal/docs"
	"bridge/api/internal/oracle"
)

// Resolution is the outcome of resolving a candidate against one reference document.
type Resolution struct {
	Reference docs.Document
	// FullText is the representation spans index into and the text the
	// oracle was given.
	FullText string
	Verdict  Verdict
	// Location is nil for rejected verdicts and unlocatable clauses.
	Location *Location
}

// Resolver asks the oracle whether a reference document supports a
// candidate paragraph and recovers where.
type Resolver struct {
	docs   docs.Store
	oracle oracle.Oracle
	strict bool
}

func NewResolver(store docs.Store, o oracle.Oracle, strict bool) *Resolver {
	return &Resolver{docs: store, oracle: o, strict: strict}
}

// Resolve fetches the reference document, queries the oracle and, for an
// accepted verdict, locates the clause. Transport failures are returned
// as-is; an empty or unparseable oracle response wraps ErrMalformedResponse.
func (r *Resolver) Resolve(ctx context.Context, candidate, referenceDocID string) (Resolution, error) {
	reference, err := r.docs.Fetch(ctx, referenceDocID)
	if err != nil {
		return Resolution{}, err
	}
	fullText := docs.FullText(reference.Body)
	res := Resolution{Reference: reference, FullText: fullText}

	raw, err := r.oracle.Analyze(ctx, oracle.Request{DraftText: candidate, ReferenceText: fullText})
	if errors.Is(err, oracle.ErrEmptyResponse) {
		return res, fmt.Errorf("reference %s: %w: %w", referenceDocID, ErrMalformedResponse, err)
	}
	if err != nil {
		return res, fmt.Errorf("analyze %s: %w", referenceDocID, err)
	}

	verdict, err := ParseVerdict(raw, r.strict)
	if err != nil {
		return res, fmt.Errorf("reference %s: %w", referenceDocID, err)
	}
	res.Verdict = verdict
	if !verdict.Accepted {
		return res, nil
	}

	if loc, ok := Locate(verdict.Clause, fullText, docs.Paragraphs(reference.Body)); ok {
		res.Location = &loc
	}
	return res, nil
}
