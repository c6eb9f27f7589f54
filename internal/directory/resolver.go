package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/azar84/business-directory-cli/internal/db"
	"github.com/azar84/business-directory-cli/internal/model"
	"github.com/azar84/business-directory-cli/internal/normalize"
	"github.com/azar84/business-directory-cli/internal/taxonomy"
)

// Options tune a single resolution.
type Options struct {
	// MinConfidence rejects verdicts below this confidence even when the
	// source says the site is a business.
	MinConfidence float64
	// DryRun runs the full resolution logic but commits nothing.
	DryRun bool
	// DefaultCountry fills addresses that arrive without one.
	DefaultCountry string
}

// Outcome reports what a resolution did.
type Outcome struct {
	CompanyID  int64    `json:"company_id,omitempty"`
	Identity   string   `json:"identity,omitempty"`
	Created    bool     `json:"created"`
	Updated    bool     `json:"updated"`
	Skipped    bool     `json:"skipped"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Resolver dedups normalized records into the directory.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve gates, dedups and upserts one normalized record.
//
// Persistence happens only for records whose verdict is explicitly
// isBusiness=true at or above the confidence floor; everything else is a
// logged skip, not an error. Lookup is by normalized website identity first,
// then by exact case-insensitive name. A unique-violation race on create is
// resolved by retrying as an update-merge.
func (r *Resolver) Resolve(ctx context.Context, rec *model.NormalizedEnrichmentRecord, opts Options) (*Outcome, error) {
	if rec == nil {
		return nil, eris.New("directory: record is required")
	}

	if !rec.Analysis.BusinessConfirmed() {
		reason := "classification did not confirm a business"
		if rec.Analysis.IsBusiness != nil {
			reason = "classified as not a business"
		}
		zap.L().Info("resolve: skipped",
			zap.String("website", rec.Company.Website),
			zap.String("reason", reason),
			zap.String("reasoning", rec.Analysis.Reasoning),
		)
		return &Outcome{Skipped: true, SkipReason: reason}, nil
	}

	if rec.Analysis.Confidence < opts.MinConfidence {
		reason := fmt.Sprintf("confidence %.2f below threshold %.2f", rec.Analysis.Confidence, opts.MinConfidence)
		zap.L().Info("resolve: skipped",
			zap.String("website", rec.Company.Website),
			zap.String("reason", reason),
		)
		return &Outcome{Skipped: true, SkipReason: reason}, nil
	}

	identity := normalize.WebsiteIdentity(rec.Company.Website)
	if identity == "" {
		return nil, eris.New("directory: record has no website to derive an identity from")
	}

	candidate, warnings := buildCompany(rec, identity, opts.DefaultCountry, r.now())

	existing, err := r.findExisting(ctx, identity, rec.Company.Name)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return r.mergeInto(ctx, existing, candidate, warnings, opts.DryRun)
	}

	if opts.DryRun {
		zap.L().Info("resolve: dry run, would create company",
			zap.String("identity", identity),
			zap.String("name", candidate.Name),
		)
		return &Outcome{Identity: identity, Created: true, Warnings: warnings}, nil
	}

	if err := r.store.Create(ctx, candidate); err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, eris.Wrap(err, "directory: create company")
		}
		// Lost the race for this identity: another writer created it
		// between our lookup and insert. Merge into theirs instead.
		zap.L().Debug("resolve: identity race, retrying as merge",
			zap.String("identity", identity),
		)
		existing, err = r.store.GetByIdentity(ctx, identity)
		if err != nil {
			return nil, eris.Wrap(err, "directory: reload after conflict")
		}
		if existing == nil {
			return nil, eris.Errorf("directory: conflict on %s but no company found", identity)
		}
		return r.mergeInto(ctx, existing, candidate, warnings, false)
	}

	zap.L().Info("resolve: created company",
		zap.Int64("company_id", candidate.ID),
		zap.String("identity", identity),
		zap.String("name", candidate.Name),
	)
	return &Outcome{
		CompanyID: candidate.ID,
		Identity:  identity,
		Created:   true,
		Warnings:  warnings,
	}, nil
}

func (r *Resolver) findExisting(ctx context.Context, identity, name string) (*Company, error) {
	existing, err := r.store.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, eris.Wrap(err, "directory: lookup by identity")
	}
	if existing != nil {
		return existing, nil
	}

	// Catch near-duplicates filed under a different URL.
	if name == "" {
		return nil, nil
	}
	existing, err = r.store.GetByName(ctx, name)
	if err != nil {
		return nil, eris.Wrap(err, "directory: lookup by name")
	}
	if existing != nil {
		zap.L().Debug("resolve: matched by name",
			zap.String("name", name),
			zap.Int64("company_id", existing.ID),
		)
	}
	return existing, nil
}

func (r *Resolver) mergeInto(ctx context.Context, existing, candidate *Company, warnings []string, dryRun bool) (*Outcome, error) {
	Merge(existing, candidate, r.now())

	if dryRun {
		zap.L().Info("resolve: dry run, would update company",
			zap.Int64("company_id", existing.ID),
			zap.String("identity", existing.Identity),
		)
		return &Outcome{
			CompanyID: existing.ID,
			Identity:  existing.Identity,
			Updated:   true,
			Warnings:  warnings,
		}, nil
	}

	if err := r.store.Update(ctx, existing); err != nil {
		return nil, eris.Wrap(err, "directory: update company")
	}

	zap.L().Info("resolve: merged into existing company",
		zap.Int64("company_id", existing.ID),
		zap.String("identity", existing.Identity),
	)
	return &Outcome{
		CompanyID: existing.ID,
		Identity:  existing.Identity,
		Updated:   true,
		Warnings:  warnings,
	}, nil
}

// buildCompany maps a normalized record onto a company aggregate. Category
// strings that fail taxonomy resolution are dropped with a warning rather
// than stored as pseudo-categories.
func buildCompany(rec *model.NormalizedEnrichmentRecord, identity, defaultCountry string, now time.Time) (*Company, []string) {
	c := &Company{
		Identity:       identity,
		Name:           rec.Company.Name,
		Website:        rec.Company.Website,
		Description:    rec.Company.Description,
		IsActive:       true,
		LastEnrichedAt: &now,
	}

	for _, addr := range rec.Contact.Addresses {
		country := addr.Country
		if country == "" {
			country = defaultCountry
		}
		c.Addresses = append(c.Addresses, Address{
			Street:  addr.Street,
			City:    addr.City,
			State:   normalize.RegionName(addr.State),
			Zip:     addr.Zip,
			Country: normalize.CountryName(country),
		})
	}

	for _, email := range rec.Contact.Emails {
		c.Contacts = append(c.Contacts, Contact{Type: ContactEmail, Value: strings.ToLower(email)})
	}
	for _, phone := range rec.Contact.Phones {
		c.Contacts = append(c.Contacts, Contact{Type: ContactPhone, Value: phone})
	}
	for platform, url := range rec.Contact.Social {
		if url == "" {
			continue
		}
		c.Social = append(c.Social, SocialProfile{Platform: strings.ToLower(platform), URL: url})
	}

	for _, svc := range rec.Company.Services {
		c.Services = append(c.Services, Service{Name: svc})
	}
	for _, person := range rec.Company.Staff {
		if person.Name == "" {
			continue
		}
		c.Staff = append(c.Staff, StaffMember{Name: person.Name, Title: person.Title})
	}
	for _, tech := range rec.Company.Technology {
		c.Technologies = append(c.Technologies, Technology{Name: tech})
	}

	var warnings []string
	for _, cat := range rec.Company.Categories {
		res, ok := taxonomy.ResolveWithSub(cat.Code, cat.Title, cat.SubIndustry)
		if !ok {
			warn := fmt.Sprintf("unresolved category %q dropped", categoryLabel(cat))
			warnings = append(warnings, warn)
			zap.L().Warn("resolve: category did not match canonical taxonomy",
				zap.String("code", cat.Code),
				zap.String("title", cat.Title),
			)
			continue
		}
		c.Industries = append(c.Industries, IndustryAssociation{
			IndustryCode:    res.Industry.Code,
			IndustryTitle:   res.Industry.Title,
			SubIndustry:     res.SubIndustry,
			TaxonomyVersion: taxonomy.Version,
		})
	}
	c.Industries = dedupeIndustries(c.Industries)

	return c, warnings
}

func categoryLabel(cat model.Category) string {
	if cat.Title != "" {
		return cat.Title
	}
	return cat.Code
}

func dedupeIndustries(in []IndustryAssociation) []IndustryAssociation {
	seen := make(map[string]bool, len(in))
	var out []IndustryAssociation
	for _, ia := range in {
		if seen[ia.Key()] {
			continue
		}
		seen[ia.Key()] = true
		out = append(out, ia)
	}
	return out
}
