package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/db"
)

// PostgresStore implements Store on a pgx pool. All aggregate writes run in
// a single transaction; the unique index on identity backs the per-identity
// critical section.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS companies (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	identity         TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	is_active        BOOLEAN NOT NULL DEFAULT true,
	last_enriched_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_identity ON companies(identity);
CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(lower(name));

CREATE TABLE IF NOT EXISTS company_addresses (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	street     TEXT NOT NULL DEFAULT '',
	city       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	zip        TEXT NOT NULL DEFAULT '',
	country    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS company_contacts (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	value      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_social_profiles (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	platform   TEXT NOT NULL,
	url        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_services (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_staff (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS company_technologies (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_industries (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	company_id       BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	industry_code    TEXT NOT NULL,
	industry_title   TEXT NOT NULL,
	sub_industry     TEXT NOT NULL DEFAULT '',
	taxonomy_version TEXT NOT NULL
);
`

// Migrate creates the directory schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "directory: migrate")
	}
	return nil
}

const companyColumns = `id, identity, name, website, description, is_active, last_enriched_at, created_at, updated_at`

func (s *PostgresStore) GetByIdentity(ctx context.Context, identity string) (*Company, error) {
	return s.getOne(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE identity = $1`,
		identity,
	)
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*Company, error) {
	return s.getOne(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`,
		name,
	)
}

func (s *PostgresStore) getOne(ctx context.Context, sql string, arg any) (*Company, error) {
	var c Company
	err := s.pool.QueryRow(ctx, sql, arg).Scan(
		&c.ID, &c.Identity, &c.Name, &c.Website, &c.Description,
		&c.IsActive, &c.LastEnrichedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "directory: query company")
	}

	if err := s.loadChildren(ctx, s.pool, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// querier is the read surface shared by db.Pool and pgx.Tx, so child loads
// can run either standalone or inside an update transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) loadChildren(ctx context.Context, q querier, c *Company) error {
	rows, err := q.Query(ctx,
		`SELECT id, company_id, street, city, state, zip, country FROM company_addresses WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load addresses")
	}
	c.Addresses, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Address])
	if err != nil {
		return eris.Wrap(err, "directory: scan addresses")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, type, value FROM company_contacts WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load contacts")
	}
	c.Contacts, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Contact])
	if err != nil {
		return eris.Wrap(err, "directory: scan contacts")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, platform, url FROM company_social_profiles WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load social profiles")
	}
	c.Social, err = pgx.CollectRows(rows, pgx.RowToStructByPos[SocialProfile])
	if err != nil {
		return eris.Wrap(err, "directory: scan social profiles")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, name FROM company_services WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load services")
	}
	c.Services, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Service])
	if err != nil {
		return eris.Wrap(err, "directory: scan services")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, name, title FROM company_staff WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load staff")
	}
	c.Staff, err = pgx.CollectRows(rows, pgx.RowToStructByPos[StaffMember])
	if err != nil {
		return eris.Wrap(err, "directory: scan staff")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, name FROM company_technologies WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load technologies")
	}
	c.Technologies, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Technology])
	if err != nil {
		return eris.Wrap(err, "directory: scan technologies")
	}

	rows, err = q.Query(ctx,
		`SELECT id, company_id, industry_code, industry_title, sub_industry, taxonomy_version FROM company_industries WHERE company_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return eris.Wrap(err, "directory: load industries")
	}
	c.Industries, err = pgx.CollectRows(rows, pgx.RowToStructByPos[IndustryAssociation])
	if err != nil {
		return eris.Wrap(err, "directory: scan industries")
	}

	return nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Company) error {
	now := time.Now().UTC()
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO companies (identity, name, website, description, is_active, last_enriched_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			 RETURNING id, created_at, updated_at`,
			c.Identity, c.Name, c.Website, c.Description, c.IsActive, c.LastEnrichedAt, now,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			// Not wrapped with eris here: the resolver inspects the pg
			// error code to detect the identity race.
			return err
		}
		return s.insertChildren(ctx, tx, c, false)
	})
}

func (s *PostgresStore) Update(ctx context.Context, c *Company) error {
	if c.ID == 0 {
		return eris.New("directory: update requires a persisted company")
	}
	now := time.Now().UTC()
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the aggregate row so concurrent merges for the same company
		// serialize. The caller merged against a read taken before this
		// lock, so its children are re-checked against the committed state
		// below before anything is inserted.
		var locked int64
		if err := tx.QueryRow(ctx,
			`SELECT id FROM companies WHERE id = $1 FOR UPDATE`, c.ID,
		).Scan(&locked); err != nil {
			return eris.Wrap(err, "directory: lock company row")
		}

		_, err := tx.Exec(ctx,
			`UPDATE companies
			 SET name = $1, website = $2, description = $3, is_active = $4, last_enriched_at = $5, updated_at = $6
			 WHERE id = $7`,
			c.Name, c.Website, c.Description, c.IsActive, c.LastEnrichedAt, now, c.ID,
		)
		if err != nil {
			return eris.Wrap(err, "directory: update company row")
		}
		c.UpdatedAt = now

		fresh := Company{ID: c.ID}
		if err := s.loadChildren(ctx, tx, &fresh); err != nil {
			return err
		}
		reconcileChildren(c, &fresh)
		return s.insertChildren(ctx, tx, c, true)
	})
}

// reconcileChildren rebases c's children onto the committed rows loaded under
// the row lock. Zero-ID children whose dedup key another writer already
// committed are dropped, so a lost merge race cannot insert duplicates.
func reconcileChildren(c, fresh *Company) {
	c.Addresses = append(fresh.Addresses, newAddresses(fresh.Addresses, c.Addresses)...)
	c.Contacts = append(fresh.Contacts, newContacts(fresh.Contacts, c.Contacts)...)
	c.Social = append(fresh.Social, newSocial(fresh.Social, c.Social)...)
	c.Services = append(fresh.Services, newServices(fresh.Services, c.Services)...)
	c.Staff = append(fresh.Staff, newStaff(fresh.Staff, c.Staff)...)
	c.Technologies = append(fresh.Technologies, newTechnologies(fresh.Technologies, c.Technologies)...)
	c.Industries = append(fresh.Industries, newIndustries(fresh.Industries, c.Industries)...)
}

// insertChildren persists the aggregate's children. When onlyNew is set,
// children that already carry an ID are skipped (merge appends only).
func (s *PostgresStore) insertChildren(ctx context.Context, tx pgx.Tx, c *Company, onlyNew bool) error {
	for i := range c.Addresses {
		a := &c.Addresses[i]
		if onlyNew && a.ID != 0 {
			continue
		}
		a.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_addresses (company_id, street, city, state, zip, country)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			a.CompanyID, a.Street, a.City, a.State, a.Zip, a.Country,
		).Scan(&a.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert address")
		}
	}

	for i := range c.Contacts {
		ct := &c.Contacts[i]
		if onlyNew && ct.ID != 0 {
			continue
		}
		ct.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_contacts (company_id, type, value) VALUES ($1, $2, $3) RETURNING id`,
			ct.CompanyID, ct.Type, ct.Value,
		).Scan(&ct.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert contact")
		}
	}

	for i := range c.Social {
		sp := &c.Social[i]
		if onlyNew && sp.ID != 0 {
			continue
		}
		sp.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_social_profiles (company_id, platform, url) VALUES ($1, $2, $3) RETURNING id`,
			sp.CompanyID, sp.Platform, sp.URL,
		).Scan(&sp.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert social profile")
		}
	}

	for i := range c.Services {
		sv := &c.Services[i]
		if onlyNew && sv.ID != 0 {
			continue
		}
		sv.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_services (company_id, name) VALUES ($1, $2) RETURNING id`,
			sv.CompanyID, sv.Name,
		).Scan(&sv.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert service")
		}
	}

	for i := range c.Staff {
		st := &c.Staff[i]
		if onlyNew && st.ID != 0 {
			continue
		}
		st.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_staff (company_id, name, title) VALUES ($1, $2, $3) RETURNING id`,
			st.CompanyID, st.Name, st.Title,
		).Scan(&st.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert staff member")
		}
	}

	for i := range c.Technologies {
		tech := &c.Technologies[i]
		if onlyNew && tech.ID != 0 {
			continue
		}
		tech.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_technologies (company_id, name) VALUES ($1, $2) RETURNING id`,
			tech.CompanyID, tech.Name,
		).Scan(&tech.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert technology")
		}
	}

	for i := range c.Industries {
		ia := &c.Industries[i]
		if onlyNew && ia.ID != 0 {
			continue
		}
		ia.CompanyID = c.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO company_industries (company_id, industry_code, industry_title, sub_industry, taxonomy_version)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			ia.CompanyID, ia.IndustryCode, ia.IndustryTitle, ia.SubIndustry, ia.TaxonomyVersion,
		).Scan(&ia.ID)
		if err != nil {
			return eris.Wrap(err, "directory: insert industry association")
		}
	}

	return nil
}

var _ Store = (*PostgresStore)(nil)
