// Package directory owns the business-directory aggregate: the deduplicated
// Company record, its child collections, and the resolver that upserts
// classification results into it.
package directory

import (
	"strings"
	"time"
)

// Company is the aggregate root, identified uniquely by its normalized
// website identity. Children are exclusively owned: they never exist without
// a parent and are removed with it.
type Company struct {
	ID              int64      `json:"id" db:"id"`
	Identity        string     `json:"identity" db:"identity"`
	Name            string     `json:"name" db:"name"`
	Website         string     `json:"website,omitempty" db:"website"`
	Description     string     `json:"description,omitempty" db:"description"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastEnrichedAt  *time.Time `json:"last_enriched_at,omitempty" db:"last_enriched_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`

	Addresses    []Address             `json:"addresses,omitempty"`
	Contacts     []Contact             `json:"contacts,omitempty"`
	Social       []SocialProfile       `json:"social,omitempty"`
	Services     []Service             `json:"services,omitempty"`
	Staff        []StaffMember         `json:"staff,omitempty"`
	Technologies []Technology          `json:"technologies,omitempty"`
	Industries   []IndustryAssociation `json:"industries,omitempty"`
}

// Address is a physical location for a company.
type Address struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Street    string `json:"street,omitempty" db:"street"`
	City      string `json:"city,omitempty" db:"city"`
	State     string `json:"state,omitempty" db:"state"`
	Zip       string `json:"zip,omitempty" db:"zip"`
	Country   string `json:"country,omitempty" db:"country"`
}

// Key is the dedup key for an address: city + state + country,
// case-insensitive.
func (a Address) Key() string {
	return childKey(a.City, a.State, a.Country)
}

func (a Address) isEmpty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Zip == "" && a.Country == ""
}

// Contact method types.
const (
	ContactEmail = "email"
	ContactPhone = "phone"
)

// Contact is a way to reach the company.
type Contact struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Type      string `json:"type" db:"type"`
	Value     string `json:"value" db:"value"`
}

// Key is the dedup key for a contact: type + value.
func (c Contact) Key() string {
	return childKey(c.Type, c.Value)
}

// SocialProfile is a presence on a social platform.
type SocialProfile struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Platform  string `json:"platform" db:"platform"`
	URL       string `json:"url" db:"url"`
}

// Key is the dedup key for a social profile: the platform.
func (s SocialProfile) Key() string {
	return childKey(s.Platform)
}

// Service is something the company offers.
type Service struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Name      string `json:"name" db:"name"`
}

// Key is the dedup key for a service.
func (s Service) Key() string {
	return childKey(s.Name)
}

// StaffMember is a person named on the company's site.
type StaffMember struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Name      string `json:"name" db:"name"`
	Title     string `json:"title,omitempty" db:"title"`
}

// Key is the dedup key for a staff member: name + title.
func (s StaffMember) Key() string {
	return childKey(s.Name, s.Title)
}

// Technology is a product or platform the company is known to use.
type Technology struct {
	ID        int64  `json:"id" db:"id"`
	CompanyID int64  `json:"company_id" db:"company_id"`
	Name      string `json:"name" db:"name"`
}

// Key is the dedup key for a technology.
func (t Technology) Key() string {
	return childKey(t.Name)
}

// IndustryAssociation links a company to a canonical industry. Only resolved
// code/sub-industry pairs are ever stored; free text that fails taxonomy
// resolution is dropped with a warning upstream.
type IndustryAssociation struct {
	ID              int64  `json:"id" db:"id"`
	CompanyID       int64  `json:"company_id" db:"company_id"`
	IndustryCode    string `json:"industry_code" db:"industry_code"`
	IndustryTitle   string `json:"industry_title" db:"industry_title"`
	SubIndustry     string `json:"sub_industry,omitempty" db:"sub_industry"`
	TaxonomyVersion string `json:"taxonomy_version" db:"taxonomy_version"`
}

// Key is the dedup key for an industry association: code + sub-industry.
func (i IndustryAssociation) Key() string {
	return childKey(i.IndustryCode, i.SubIndustry)
}

func childKey(parts ...string) string {
	folded := make([]string, len(parts))
	for i, p := range parts {
		folded[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(folded, "|")
}
