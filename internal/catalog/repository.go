// Package catalog serves the tour packages a company sells, grouped by city.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrPackageNotFound is returned for unknown, inactive or deleted packages.
var ErrPackageNotFound = errors.New("catalog: package not found")

// Package is a sellable tour.
type Package struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	City          string   `json:"city"`
	Description   string   `json:"description,omitempty"`
	Itinerary     []string `json:"itinerary,omitempty"`
	Excludes      []string `json:"excludes,omitempty"`
	Price         int64    `json:"price"`
	Currency      string   `json:"currency"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads packages from Postgres.
type Repository struct {
	db          rowQuerier
	mediaPrefix string
}

// NewRepository creates a repository; publicBaseURL prefixes relative cover image paths.
func NewRepository(pool *pgxpool.Pool, publicBaseURL string) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return newRepositoryWithQuerier(pool, publicBaseURL)
}

func newRepositoryWithQuerier(q rowQuerier, publicBaseURL string) *Repository {
	if q == nil {
		panic("catalog: querier required")
	}
	return &Repository{db: q, mediaPrefix: strings.TrimRight(publicBaseURL, "/")}
}

// NormalizeCity title-cases a city name the way packages are grouped.
func NormalizeCity(city string) string {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.ToLower(city))
}

// Cities lists distinct cities that have at least one active package.
func (r *Repository) Cities(ctx context.Context, companyID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT initcap(lower(trim(city))) AS city
		FROM tour_packages
		WHERE company_id = $1 AND status = 'active' AND NOT is_deleted AND trim(city) <> ''
		ORDER BY city
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query cities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("catalog: scan city: %w", err)
		}
		out = append(out, NormalizeCity(city))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate cities: %w", err)
	}
	return out, nil
}

const selectPackage = `
	SELECT id, title, city, COALESCE(description, ''), COALESCE(itinerary, ''), COALESCE(excludes, ''),
	       (price * 100)::bigint, currency, COALESCE(cover_image, '')
	FROM tour_packages
`

// PackagesByCity lists active packages for a city, cheapest first.
func (r *Repository) PackagesByCity(ctx context.Context, companyID int64, city string) ([]Package, error) {
	rows, err := r.db.Query(ctx, selectPackage+`
		WHERE company_id = $1 AND lower(trim(city)) = lower($2) AND status = 'active' AND NOT is_deleted
		ORDER BY price, id
	`, companyID, strings.TrimSpace(city))
	if err != nil {
		return nil, fmt.Errorf("catalog: query packages: %w", err)
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		p, err := r.scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate packages: %w", err)
	}
	return out, nil
}

// Package loads one active package.
func (r *Repository) Package(ctx context.Context, companyID, packageID int64) (Package, error) {
	row := r.db.QueryRow(ctx, selectPackage+`
		WHERE company_id = $1 AND id = $2 AND status = 'active' AND NOT is_deleted
	`, companyID, packageID)
	p, err := r.scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Package{}, ErrPackageNotFound
		}
		return Package{}, err
	}
	return p, nil
}

func (r *Repository) scanPackage(row pgx.Row) (Package, error) {
	var p Package
	var description, itinerary, excludes, cover string
	if err := row.Scan(&p.ID, &p.Title, &p.City, &description, &itinerary, &excludes, &p.Price, &p.Currency, &cover); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Package{}, err
		}
		return Package{}, fmt.Errorf("catalog: scan package: %w", err)
	}
	p.City = NormalizeCity(p.City)
	p.Description = HTMLToText(description)
	p.Itinerary = HTMLToBullets(itinerary)
	p.Excludes = HTMLToBullets(excludes)
	p.CoverImageURL = r.mediaURL(cover)
	return p, nil
}

func (r *Repository) mediaURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if r.mediaPrefix == "" {
		return ""
	}
	return r.mediaPrefix + "/" + strings.TrimLeft(path, "/")
}
