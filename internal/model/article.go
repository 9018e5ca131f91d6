package model

import "time"

// Article is a cross-user piece of content, unique by URL. The raw RSS
// snippet lives in Content; CleanText is filled lazily by the content
// extractor (C3) and is shared across every user who matched the article.
type Article struct {
	ID                string
	SourceID          string // source whose scrape first persisted the article; not changed when another source yields the same URL
	URL               string
	Title             string
	Content           string
	CleanText         string
	RawHTML           string
	ExternalLinks     []string
	Author            string
	GUID              string
	PublishedAt       *time.Time
	EntitiesExtracted bool
	CVEsExtracted     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Text returns the best available body for downstream NLP/LLM stages:
// the extracted clean text when present, falling back to the RSS snippet.
func (a *Article) Text() string {
	if a.CleanText != "" {
		return a.CleanText
	}
	return a.Content
}

// UserArticle links a user to an article they matched against, carrying
// per-user read/sent state and cluster membership.
type UserArticle struct {
	UserID          string
	ArticleID       string
	Matched         bool
	MatchedKeywords []string
	NewsGroupID     string // empty until clustered
	Read            bool
	Sent            bool
	SentAt          *time.Time
	CreatedAt       time.Time
}

// ParsedItem is a single feed entry as produced by the scraper, before it
// is persisted. It carries no source id.
type ParsedItem struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt *time.Time
	Author      string
	Tags        []string
	GUID        string
}
