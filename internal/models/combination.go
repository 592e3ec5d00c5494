package models

import "time"

// Source records how a combination entered the catalog. Both flags false means
// a player discovery. Planned paths saved by an admin carry both.
type Source struct {
	OracleGenerated bool `json:"oracleGenerated"`
	AdminDefined    bool `json:"adminDefined"`
}

// CombinationRecord is one entry in the shared catalog.
type CombinationRecord struct {
	ID               int64     `json:"id"`
	Key              string    `json:"key"`
	ElementA         string    `json:"elementA"`
	ElementB         string    `json:"elementB"`
	ResultName       string    `json:"resultName"`
	ResultEmoji      string    `json:"resultEmoji"`
	Source           Source    `json:"source"`
	Reserved         bool      `json:"reserved,omitempty"`
	DiscovererUserID *string   `json:"discovererUserId"`
	UseCount         int64     `json:"useCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Result returns the record's result as an element.
func (r *CombinationRecord) Result() Element {
	return Element{Name: r.ResultName, Emoji: r.ResultEmoji}
}

// Conflict is reported when a generated result disagrees with the catalog.
type Conflict struct {
	Existing  Element `json:"existing"`
	Generated Element `json:"generated"`
}

// CombineResult is the outcome of combining two elements.
type CombineResult struct {
	Result         Element   `json:"result"`
	FirstDiscovery bool      `json:"firstDiscovery"`
	FromCache      bool      `json:"fromCache"`
	Conflict       *Conflict `json:"conflict,omitempty"`
}

// CatalogAuditEvent records an admin mutation of the catalog.
type CatalogAuditEvent struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Key       string    `json:"key"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}
