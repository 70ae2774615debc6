package keygen

import (
	"encoding/json"
	"strings"
)

// Directory event names the relay reconciles
const (
	EventMachineCreated = "machine.created"
	EventMachineDeleted = "machine.deleted"
)

// License is a license record as returned by the directory. The relay never
// caches it: every decision re-reads the authoritative record.
type License struct {
	ID         string            `json:"id"`
	Attributes LicenseAttributes `json:"attributes"`
}

// LicenseAttributes holds the license fields the relay reads
type LicenseAttributes struct {
	Key       string            `json:"key"`
	Suspended bool              `json:"suspended"`
	Metadata  map[string]string `json:"metadata"`
}

// Machine is one activation of a license, owned entirely by the directory
type Machine struct {
	ID            string        `json:"id"`
	Relationships Relationships `json:"relationships"`
}

// Relationships carries the JSON:API relationship linkage we care about
type Relationships struct {
	License RelationshipRef `json:"license"`
}

// RelationshipRef is a JSON:API resource linkage
type RelationshipRef struct {
	Data ResourceID `json:"data"`
}

// ResourceID identifies a JSON:API resource
type ResourceID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// WebhookEvent is the authoritative record of a directory notification,
// re-fetched by id before the relay trusts anything the webhook body said
type WebhookEvent struct {
	ID         string          `json:"id"`
	Attributes EventAttributes `json:"attributes"`
}

// EventAttributes holds the event name and its embedded payload, which is a
// JSON document serialized into a string
type EventAttributes struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// MachinePayload decodes the machine document embedded in a machine.* event
func (e *WebhookEvent) MachinePayload() (*Machine, error) {
	var doc struct {
		Data Machine `json:"data"`
	}
	if err := json.Unmarshal([]byte(e.Attributes.Payload), &doc); err != nil {
		return nil, err
	}
	return &doc.Data, nil
}

// PageLinks carries JSON:API pagination links
type PageLinks struct {
	Next string `json:"next"`
	Last string `json:"last"`
}

// ErrorObject is one JSON:API error
type ErrorObject struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// DirectoryError is a directory API failure carrying the service's own
// error objects, surfaced verbatim so an operator can act on them
type DirectoryError struct {
	StatusCode int
	Errors     []ErrorObject
}

// Error joins the error details the way the directory reports them
func (e *DirectoryError) Error() string {
	if len(e.Errors) == 0 {
		return "directory error"
	}
	details := make([]string, 0, len(e.Errors))
	for _, obj := range e.Errors {
		if obj.Detail != "" {
			details = append(details, obj.Detail)
		} else {
			details = append(details, obj.Title)
		}
	}
	return strings.Join(details, ", ")
}

// HasErrorCode reports whether any error object carries the given code
func (e *DirectoryError) HasErrorCode(code string) bool {
	for _, obj := range e.Errors {
		if obj.Code == code {
			return true
		}
	}
	return false
}
