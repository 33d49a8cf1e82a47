package domain

import "time"

// Listing is a job posting ingested from the Scraper. Immutable after
// classification except for IntelligenceOnly and derived scores on
// reclassification (e.g. after an embedding-model migration).
type Listing struct {
	ID               string
	ExternalID       string
	Title            string
	HiringEntity     string
	FullText         string
	FirstSeenAt      time.Time
	SearchKeyword    string
	RoleType         RoleType
	Seniority        Seniority
	TechnologyTags   []string
	ArchetypeScores  ScoreMap
	PrimaryArchetype Archetype
	Embedding        Embedding
	IntelligenceOnly bool
	Classified       bool
	ClassifyAttempts int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewListing builds a Listing with the fields the Scraper supplies;
// classification fields are populated later by the Archetype Classifier.
func NewListing(id, externalID, title, hiringEntity, fullText, searchKeyword string, firstSeen time.Time) *Listing {
	return &Listing{
		ID:            id,
		ExternalID:    externalID,
		Title:         title,
		HiringEntity:  hiringEntity,
		FullText:      fullText,
		FirstSeenAt:   firstSeen,
		SearchKeyword: searchKeyword,
		RoleType:      RoleUnknown,
		Seniority:     SeniorityUnknown,
	}
}

func (l *Listing) Validate() error {
	if l.ExternalID == "" || l.Title == "" || l.HiringEntity == "" || l.FullText == "" {
		return ErrValidation
	}
	return nil
}
