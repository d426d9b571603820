package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"resume-aggregator/internal/core"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS resumes (
	source                  TEXT        NOT NULL,
	id                      TEXT        NOT NULL,
	first_name              TEXT        NOT NULL DEFAULT '',
	middle_name             TEXT        NOT NULL DEFAULT '',
	last_name               TEXT        NOT NULL DEFAULT '',
	title                   TEXT        NOT NULL DEFAULT '',
	age                     INT         NOT NULL DEFAULT 0,
	location                TEXT        NOT NULL DEFAULT '',
	salary_amount           BIGINT,
	salary_currency         TEXT,
	experience              JSONB       NOT NULL DEFAULT '[]',
	total_experience_months INT         NOT NULL DEFAULT 0,
	link                    TEXT        NOT NULL DEFAULT '',
	received_at             TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, id)
)`

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewPostgres(ctx context.Context, dsn string, ttl time.Duration, logger *zap.Logger) (*Postgres, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	p := &Postgres{pool: pool, ttl: ttl, logger: logger, now: time.Now}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating resumes table: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, ref core.Ref) (*core.Resume, error) {
	const query = `
		SELECT first_name, middle_name, last_name, title, age, location,
		       salary_amount, salary_currency, experience,
		       total_experience_months, link, received_at
		FROM resumes
		WHERE source = $1 AND id = $2`

	var (
		resume         core.Resume
		salaryAmount   *int64
		salaryCurrency *string
		experience     []byte
	)

	row := p.pool.QueryRow(ctx, query, string(ref.Provider), ref.ID)
	err := row.Scan(
		&resume.FirstName, &resume.MiddleName, &resume.LastName,
		&resume.Title, &resume.Age, &resume.Location,
		&salaryAmount, &salaryCurrency, &experience,
		&resume.TotalExperienceMonths, &resume.Link, &resume.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading resume %s: %w", ref, err)
	}

	if Stale(p.now(), resume.ReceivedAt, p.ttl) {
		p.logger.Debug("stored resume is stale, treating as miss",
			zap.String("ref", ref.String()),
			zap.Time("received_at", resume.ReceivedAt),
		)
		return nil, nil
	}

	resume.Provider = ref.Provider
	resume.ID = ref.ID
	if salaryAmount != nil {
		currency := ""
		if salaryCurrency != nil {
			currency = *salaryCurrency
		}
		resume.Salary = &core.Salary{Amount: int(*salaryAmount), Currency: currency}
	}
	resume.Experience = decodeExperience(experience)

	return &resume, nil
}

func (p *Postgres) Exists(ctx context.Context, ref core.Ref) (bool, error) {
	const query = `SELECT 1 FROM resumes WHERE source = $1 AND id = $2`

	var one int
	err := p.pool.QueryRow(ctx, query, string(ref.Provider), ref.ID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking resume %s: %w", ref, err)
	}
	return true, nil
}

func (p *Postgres) Put(ctx context.Context, resume *core.Resume) error {
	if resume == nil || resume.ID == "" {
		return fmt.Errorf("resume without an id cannot be stored")
	}

	experience, err := encodeExperience(resume.Experience)
	if err != nil {
		return fmt.Errorf("encoding experience for %s: %w", resume.Ref(), err)
	}

	var salaryAmount *int64
	var salaryCurrency *string
	if resume.Salary != nil {
		amount := int64(resume.Salary.Amount)
		salaryAmount = &amount
		salaryCurrency = &resume.Salary.Currency
	}

	receivedAt := resume.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now().UTC()
	}

	const insert = `
		INSERT INTO resumes (
			source, id, first_name, middle_name, last_name, title, age,
			location, salary_amount, salary_currency, experience,
			total_experience_months, link, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (source, id) DO NOTHING`

	tag, err := p.pool.Exec(ctx, insert,
		string(resume.Provider), resume.ID,
		resume.FirstName, resume.MiddleName, resume.LastName,
		resume.Title, resume.Age, resume.Location,
		salaryAmount, salaryCurrency, experience,
		resume.TotalExperienceMonths, resume.Link, receivedAt,
	)
	if err != nil {
		return fmt.Errorf("storing resume %s: %w", resume.Ref(), err)
	}

	if tag.RowsAffected() == 0 {
		p.logger.Debug("resume already stored, keeping the first snapshot",
			zap.String("ref", resume.Ref().String()),
		)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
