// Package services implements the three simulated DevHub backends: document
// search, the owner directory, and the service status API. Each backend owns
// a read-only dataset loaded at construction and applies its own fault
// profile on every call.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Backend names used in errors and logs.
const (
	BackendDocSearch = "docsearch"
	BackendDirectory = "directory"
	BackendHealth    = "health"
)

// Document is one entry of the documentation collection.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// Team groups owners and provides a shared contact channel.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SlackChannel string `json:"slack_channel"`
}

// Owner is a person responsible for one or more services.
type Owner struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	SlackHandle string   `json:"slack_handle"`
	TeamID      string   `json:"team_id"`
	Services    []string `json:"services"`
	IsActive    bool     `json:"is_active"`
}

// DirectoryFixture is the on-disk shape of the team directory.
type DirectoryFixture struct {
	Teams  []Team  `json:"teams"`
	Owners []Owner `json:"owners"`
}

// Status is the health of a service.
type Status string

// Known status values.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusDown      Status = "down"
)

// Incident describes the most recent incident of a service.
type Incident struct {
	Since       string `json:"since"`
	Description string `json:"description"`
}

// ServiceStatus is the status record of one service.
type ServiceStatus struct {
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	UptimePercent float64   `json:"uptime_percent"`
	Incident      *Incident `json:"incident"`
}

func (s ServiceStatus) clone() ServiceStatus {
	if s.Incident != nil {
		incident := *s.Incident
		s.Incident = &incident
	}
	return s
}

// ParseDocuments decodes a JSON list of documents.
func ParseDocuments(data []byte) ([]Document, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	return docs, nil
}

// ParseDirectory decodes a {"teams": [...], "owners": [...]} document.
func ParseDirectory(data []byte) (DirectoryFixture, error) {
	var fixture DirectoryFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return DirectoryFixture{}, fmt.Errorf("parse directory: %w", err)
	}
	return fixture, nil
}

type statusRecord struct {
	Name                string  `json:"name"`
	Status              Status  `json:"status"`
	UptimePercent       float64 `json:"uptime_percent"`
	LastIncident        *string `json:"last_incident"`
	IncidentDescription *string `json:"incident_description"`
}

// ParseStatuses decodes a {"services": [...]} document. Incidents are read
// from the flat last_incident and incident_description fields.
func ParseStatuses(data []byte) ([]ServiceStatus, error) {
	var doc struct {
		Services []statusRecord `json:"services"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse statuses: %w", err)
	}

	statuses := make([]ServiceStatus, 0, len(doc.Services))
	for _, rec := range doc.Services {
		status := ServiceStatus{
			Name:          rec.Name,
			Status:        rec.Status,
			UptimePercent: rec.UptimePercent,
		}
		since, desc := deref(rec.LastIncident), deref(rec.IncidentDescription)
		if since != "" || desc != "" {
			status.Incident = &Incident{Since: since, Description: desc}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Option configures a backend.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
