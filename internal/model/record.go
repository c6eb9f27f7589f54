package model

import (
	"encoding/json"
	"strings"
)

// NormalizedEnrichmentRecord is the uniform record extracted from any of the
// classification source's payload shapes. It is ephemeral: produced per job
// and consumed by the resolver.
type NormalizedEnrichmentRecord struct {
	Company  CompanyInfo `json:"company"`
	Analysis Analysis    `json:"analysis"`
	Contact  ContactInfo `json:"contact"`
}

// CompanyInfo holds the company-level fields of a normalized record.
type CompanyInfo struct {
	Name        string     `json:"name"`
	Website     string     `json:"website"`
	Description string     `json:"description,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
	Services    []string   `json:"services,omitempty"`
	Staff       []Staff    `json:"staff,omitempty"`
	Technology  []string   `json:"technology,omitempty"`
}

// Analysis is the classification verdict. IsBusiness is a tri-state: nil
// means the source did not commit to an answer.
type Analysis struct {
	IsBusiness *bool   `json:"isBusiness"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// BusinessConfirmed reports whether the verdict is explicitly true.
func (a Analysis) BusinessConfirmed() bool {
	return a.IsBusiness != nil && *a.IsBusiness
}

// ContactInfo holds extracted contact details.
type ContactInfo struct {
	Emails    []string          `json:"emails,omitempty"`
	Phones    []string          `json:"phones,omitempty"`
	Addresses []Address         `json:"addresses,omitempty"`
	Social    map[string]string `json:"social,omitempty"`
}

// Address is a postal address as reported by the source.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Staff is a person mentioned on the site.
type Staff struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// Category is an industry hint from the source. Older payloads send bare
// strings, newer ones send objects with an optional canonical code.
type Category struct {
	Code        string `json:"code,omitempty"`
	Title       string `json:"title,omitempty"`
	SubIndustry string `json:"subIndustry,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form.
func (c *Category) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Title = strings.TrimSpace(s)
		return nil
	}

	type categoryAlias Category
	var a categoryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Category(a)
	return nil
}

// SearchResult is one hit from an upstream search, submitted for
// classification as part of a batch.
type SearchResult struct {
	ID       string `json:"id,omitempty"`
	Query    string `json:"query,omitempty"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position,omitempty"`
}
