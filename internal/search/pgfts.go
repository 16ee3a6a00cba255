package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/FarisLab/StudySync/internal/store"
)

// PgFTS implements Searcher using the generated tsvector columns of the
// postgres backend.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// FallbackFor picks the database-side searcher for a gateway: full text
// search on postgres, an in-process scan everywhere else.
func FallbackFor(gateway store.Gateway) Searcher {
	if pg, ok := gateway.(*store.PostgresGateway); ok {
		return NewPgFTS(pg.DB())
	}
	return NewScan(gateway)
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('english', $1)"

// Search runs a UNION ALL across folders, spaces and topics filtered to the
// owner, ranked by ts_rank with ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}

	var subQueries []string
	if q.Kind == "" || q.Kind == KindFolder {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'folder'::text AS kind, f.id, f.name AS title, ''::text AS snippet,
				NULL::text AS folder_id, ts_rank(f.fts, %s) AS rank
			FROM folders f
			WHERE f.owner_id = $2 AND f.fts @@ %s`, tsQuery, tsQuery))
	}
	for _, m := range []struct {
		kind  Kind
		table string
	}{{KindSpace, "spaces"}, {KindTopic, "topics"}} {
		if q.Kind != "" && q.Kind != m.kind {
			continue
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT '%s'::text AS kind, m.id, m.title,
				ts_headline('english', m.description || ' ' || m.search_text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				m.folder_id, ts_rank(m.fts, %s) AS rank
			FROM %s m
			WHERE m.owner_id = $2 AND m.fts @@ %s`, m.kind, tsQuery, tsQuery, m.table, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")
	args := []any{q.Text, q.OwnerID}

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT kind, id, title, snippet, folder_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d`, union, q.limit()), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var kind string
		var folderID sql.NullString
		if err := rows.Scan(&kind, &r.ID, &r.Title, &r.Snippet, &folderID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Kind = Kind(kind)
		if folderID.Valid {
			id := folderID.String
			r.FolderID = &id
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
