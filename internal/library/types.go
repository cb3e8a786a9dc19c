// Package library owns the in-memory book metadata map and coordinates
// hybrid persistence: fast local metadata paired with best-effort remote
// content mirroring through the storage gateway.
package library

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidContent marks book content rejected before any persistence
// attempt.
var ErrInvalidContent = errors.New("library: invalid book content")

// PageContent is one page of a chapter, or the book's cover page.
type PageContent struct {
	Content    string `json:"content"`
	PageNumber int    `json:"pageNumber"`
	IsCover    bool   `json:"isCover"`
}

// Chapter groups pages under a title. IDs are UUIDs assigned at creation.
type Chapter struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Pages []PageContent `json:"pages"`
}

// NewChapter creates a chapter with a fresh UUID.
func NewChapter(title string) Chapter {
	return Chapter{
		ID:    uuid.New().String(),
		Title: title,
	}
}

// Book is the authoritative metadata record. It lives primarily in the
// in-memory map and is mirrored as the remote JSON blob.
type Book struct {
	ID        int64        `json:"id"`
	Title     string       `json:"title"`
	Author    string       `json:"author"`
	CoverPage *PageContent `json:"coverPage"`
	Chapters  []Chapter    `json:"chapters"`
	UserID    *int64       `json:"userId"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// BookContent is the content view of a book handed to and from callers:
// everything except the bookkeeping fields.
type BookContent struct {
	Title     string       `json:"title"`
	Author    string       `json:"author"`
	CoverPage *PageContent `json:"coverPage,omitempty"`
	Chapters  []Chapter    `json:"chapters"`
}

// content projects a book's metadata into its content view.
func (b *Book) content() BookContent {
	c := BookContent{
		Title:    b.Title,
		Author:   b.Author,
		Chapters: b.Chapters,
	}

	if c.Chapters == nil {
		c.Chapters = []Chapter{}
	}

	if b.CoverPage != nil {
		cover := *b.CoverPage
		c.CoverPage = &cover
	}

	return c
}

// clone returns a deep-enough copy so callers never alias map-held state.
func (b *Book) clone() Book {
	out := *b

	if b.CoverPage != nil {
		cover := *b.CoverPage
		out.CoverPage = &cover
	}

	if b.UserID != nil {
		uid := *b.UserID
		out.UserID = &uid
	}

	out.Chapters = cloneChapters(b.Chapters)

	return out
}

func cloneChapters(chapters []Chapter) []Chapter {
	if chapters == nil {
		return nil
	}

	out := make([]Chapter, len(chapters))
	for i, ch := range chapters {
		out[i] = ch
		out[i].Pages = append([]PageContent(nil), ch.Pages...)
	}

	return out
}

// ValidateContent rejects malformed content before persistence: a title
// is required, every chapter needs at least one page, and cover pages may
// only appear as the distinguished cover. Titles and authors are
// NFC-normalized in place.
func ValidateContent(c *BookContent) error {
	c.Title = strings.TrimSpace(norm.NFC.String(c.Title))
	c.Author = strings.TrimSpace(norm.NFC.String(c.Author))

	if c.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidContent)
	}

	if c.CoverPage != nil && !c.CoverPage.IsCover {
		return fmt.Errorf("%w: cover page must be marked isCover", ErrInvalidContent)
	}

	for i := range c.Chapters {
		ch := &c.Chapters[i]

		ch.Title = strings.TrimSpace(norm.NFC.String(ch.Title))

		if len(ch.Pages) == 0 {
			return fmt.Errorf("%w: chapter %q has no pages", ErrInvalidContent, ch.Title)
		}

		for _, page := range ch.Pages {
			if page.IsCover {
				return fmt.Errorf("%w: chapter %q contains a cover page", ErrInvalidContent, ch.Title)
			}
		}
	}

	return nil
}
