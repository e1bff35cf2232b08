package repository

import (
	"fmt"
	"strings"
)

// Listing bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 5000
)

// ListFilter selects and orders a page of invoices
type ListFilter struct {
	Limit  int
	Offset int
	// Q is matched case-insensitively against filename, number, party,
	// tax id and fiscal code
	Q        string
	DateFrom string
	DateTo   string
	OrderBy  string
	OrderDir string
}

var orderColumns = map[string]string{
	"created_at":     "created_at",
	"issue_date":     "issue_date",
	"totale":         "totale",
	"invoice_number": "invoice_number",
}

type listQuery struct {
	itemsSQL string
	countSQL string
	args     []any
	limit    int
	offset   int
}

// buildListQuery renders the page and count statements. Only whitelisted
// column names reach the SQL text; every value is a parameter. The page
// statement takes limit and offset as the two parameters after args.
func buildListQuery(f ListFilter) listQuery {
	var (
		where []string
		args  []any
	)

	if q := strings.TrimSpace(f.Q); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		var ors []string
		for _, col := range []string{"filename", "invoice_number", "intestatario", "partita_iva", "codice_fiscale"} {
			ors = append(ors, fmt.Sprintf("COALESCE(%s,'') ILIKE $%d", col, n))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if d := dateParam(f.DateFrom); d.Valid {
		args = append(args, d)
		where = append(where, fmt.Sprintf("issue_date >= $%d", len(args)))
	}
	if d := dateParam(f.DateTo); d.Valid {
		args = append(args, d)
		where = append(where, fmt.Sprintf("issue_date <= $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	col, ok := orderColumns[strings.ToLower(strings.TrimSpace(f.OrderBy))]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.OrderDir, "asc") {
		dir = "ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	return listQuery{
		itemsSQL: fmt.Sprintf("SELECT %s FROM invoices%s ORDER BY %s %s, created_at DESC LIMIT $%d OFFSET $%d",
			invoiceColumns, clause, col, dir, len(args)+1, len(args)+2),
		countSQL: "SELECT COUNT(*) FROM invoices" + clause,
		args:     args,
		limit:    limit,
		offset:   offset,
	}
}
