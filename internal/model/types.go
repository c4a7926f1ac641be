// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// BACKEND TYPES
// =============================================================================

// Discussion is a named container of exchanges, created by the user before
// any exchange exists. Title editing is out of scope; a discussion is never
// mutated client-side after creation.
type Discussion struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
}

// Exchange is one question/answer pair within a discussion (the backend
// calls it a "chat"). It is created once a stream completes and the backend
// confirms persistence, and is immutable thereafter; only the client-side
// in-flight answer mutates while streaming.
type Exchange struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	DocumentTypes []string  `json:"documentTypes,omitempty"`
	LegalSubjects []string  `json:"legalSubjects,omitempty"`
	DiscussionID  string    `json:"discussionId"`
	EvaluationID  *string   `json:"evaluationId"`
}

// Source is a citation record pointing to a legal-text excerpt. Fetched
// read-only per exchange; Reference is the citation key embedded in the
// rendered answer text.
type Source struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Title         string    `json:"title"`
	TitleNumber   string    `json:"titleNumber,omitempty"`
	Chapter       string    `json:"chapter,omitempty"`
	ChapterNumber string    `json:"chapterNumber,omitempty"`
	Section       string    `json:"section,omitempty"`
	SectionNumber string    `json:"sectionNumber,omitempty"`
	LegalTextName string    `json:"legalTextName"`
	LegalTextType string    `json:"legalTextType"`
	Bloc          string    `json:"bloc"`
	Status        string    `json:"status"`
	ArticleNumber string    `json:"articleNumber"`
	PathDoc       string    `json:"pathDoc"`
	Action        string    `json:"action"`
	Book          string    `json:"book,omitempty"`
	PathMetadata  string    `json:"pathMetadata"`
	ChatID        string    `json:"chatId"`
	Reference     string    `json:"reference"`
	Page          int       `json:"page"`
}

// =============================================================================
// PAGE ENVELOPES
// =============================================================================

// ExchangePage is one page of a discussion's exchanges as returned by
// GET /discussions/{id}/chats.
type ExchangePage struct {
	Count int        `json:"count"`
	Limit int        `json:"limit"`
	Page  int        `json:"page"`
	Data  []Exchange `json:"data"`
}

// HasNextPage reports whether another page should be fetched.
//
// This is the documented heuristic, not a total-count comparison: a page
// that is exactly full is assumed to have a successor, so an exactly-full
// final page costs one extra fetch that comes back empty. Callers treat that
// empty page as end-of-data, not as an error.
func (p *ExchangePage) HasNextPage() bool {
	return len(p.Data) == p.Limit
}

// SourcePage is one page of an exchange's sources as returned by
// GET /chats/{chatId}/sources.
type SourcePage struct {
	Count int      `json:"count"`
	Limit int      `json:"limit"`
	Page  int      `json:"page"`
	Data  []Source `json:"data"`
}
