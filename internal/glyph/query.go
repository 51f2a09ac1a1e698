package glyph

import "fmt"

// QueryWhere lets sibling packages (retrieval, tasks) compose arbitrary
// WHERE/ORDER BY clauses over the glyphs table without reaching into the
// database directly. where and orderBy are caller-controlled SQL fragments;
// args are bound positionally against the placeholders in where.
func (s *Store) QueryWhere(where, orderBy string, limit int, args ...any) ([]Glyph, error) {
	query := `SELECT ` + glyphCols + ` FROM glyphs`
	if where != "" {
		query += ` WHERE ` + where
	}
	if orderBy != "" {
		query += ` ORDER BY ` + orderBy
	}
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.queryGlyphs(query, args...)
}
