package docs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleStore implements Store over the Google Docs v1 API.
type GoogleStore struct {
	svc *gdocs.Service
}

// NewGoogleStore authenticates every call with a pre-acquired OAuth access
// token. Token refresh is handled outside this process.
func NewGoogleStore(ctx context.Context, accessToken string) (*GoogleStore, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gdocs.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}
	return &GoogleStore{svc: svc}, nil
}

func (s *GoogleStore) Fetch(ctx context.Context, docID string) (Document, error) {
	doc, err := s.svc.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return Document{}, fmt.Errorf("fetch document %s: %w", docID, mapAPIError(err))
	}
	return Document{ID: doc.DocumentId, Title: doc.Title, Body: bodyFromAPI(doc.Body)}, nil
}

func (s *GoogleStore) ApplyStyleEdits(ctx context.Context, docID string, edits []StyleEdit) error {
	if len(edits) == 0 {
		return nil
	}
	req := &gdocs.BatchUpdateDocumentRequest{Requests: styleRequests(edits)}
	if _, err := s.svc.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("apply style edits to %s: %w", docID, mapAPIError(err))
	}
	return nil
}

func (s *GoogleStore) InsertText(ctx context.Context, docID string, index int, text string) error {
	req := &gdocs.BatchUpdateDocumentRequest{Requests: []*gdocs.Request{{
		InsertText: &gdocs.InsertTextRequest{
			Location: &gdocs.Location{Index: int64(index)},
			Text:     text,
		},
	}}}
	if _, err := s.svc.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("insert text into %s: %w", docID, mapAPIError(err))
	}
	return nil
}

func bodyFromAPI(body *gdocs.Body) Body {
	if body == nil {
		return nil
	}
	out := make(Body, 0, len(body.Content))
	for _, element := range body.Content {
		if element == nil || element.Paragraph == nil {
			out = append(out, Block{})
			continue
		}
		paragraph := &Paragraph{Runs: make([]Run, 0, len(element.Paragraph.Elements))}
		for _, pe := range element.Paragraph.Elements {
			if pe == nil || pe.TextRun == nil {
				paragraph.Runs = append(paragraph.Runs, Run{})
				continue
			}
			paragraph.Runs = append(paragraph.Runs, Run{Text: pe.TextRun.Content})
		}
		out = append(out, Block{Paragraph: paragraph})
	}
	return out
}

func styleRequests(edits []StyleEdit) []*gdocs.Request {
	requests := make([]*gdocs.Request, 0, len(edits))
	for _, edit := range edits {
		style := &gdocs.TextStyle{}
		if edit.Background != nil {
			style.BackgroundColor = &gdocs.OptionalColor{Color: &gdocs.Color{RgbColor: &gdocs.RgbColor{
				Red:   edit.Background.Red,
				Green: edit.Background.Green,
				Blue:  edit.Background.Blue,
			}}}
		}
		requests = append(requests, &gdocs.Request{UpdateTextStyle: &gdocs.UpdateTextStyleRequest{
			Range:     &gdocs.Range{StartIndex: int64(edit.Start), EndIndex: int64(edit.End)},
			TextStyle: style,
			Fields:    "backgroundColor",
		}})
	}
	return requests
}

func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
