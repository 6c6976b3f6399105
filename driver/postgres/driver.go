package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orb-framework/orb3/core"
)

// Store is the PostgreSQL implementation of core.Store, backed by a pgxpool
// connection pool. All statements are parameterized; field and table names
// pass through identifier quoting.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ core.Store      = (*Store)(nil)
	_ core.Transactor = (*Store)(nil)
)

// New opens a connection pool for the given connection string and verifies it
// with a ping.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool, leaving its lifecycle to the caller.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Transaction starts a new database transaction.
func (s *Store) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &pgTransaction{tx: tx}, nil
}

// --- execution helpers honoring an ambient transaction ---

func (s *Store) query(ctx context.Context, sqlQuery string, args ...any) (pgx.Rows, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*pgTransaction); ok {
			return pgTx.tx.Query(ctx, sqlQuery, args...)
		}
	}
	return s.pool.Query(ctx, sqlQuery, args...)
}

func (s *Store) execCount(ctx context.Context, sqlQuery string, args ...any) (int64, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*pgTransaction); ok {
			tag, err := pgTx.tx.Exec(ctx, sqlQuery, args...)
			if err != nil {
				return 0, err
			}
			return tag.RowsAffected(), nil
		}
	}
	tag, err := s.pool.Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- SQL building ---

// tableFor returns the quoted, optionally namespace-qualified table name. A
// lookup namespace overrides the schema's declared one.
func tableFor(model *core.Model, lookup *core.Context) string {
	namespace := model.Schema.Namespace
	if lookup != nil && lookup.Namespace != "" {
		namespace = lookup.Namespace
	}
	if namespace != "" {
		return fmt.Sprintf("%q.%q", namespace, model.Schema.Table)
	}
	return fmt.Sprintf("%q", model.Schema.Table)
}

// columnFor maps a field name to its quoted backing column. Unknown names
// fall back to the name itself.
func columnFor(model *core.Model, fieldName string) string {
	if field, ok := model.Schema.Fields[fieldName]; ok {
		return fmt.Sprintf("%q", field.Column)
	}
	return fmt.Sprintf("%q", fieldName)
}

// storedFields returns the projected fields for a lookup: the context's field
// list when present, otherwise every non-virtual schema field in declaration
// order.
func storedFields(model *core.Model, lookup *core.Context) []*core.Field {
	if lookup != nil && len(lookup.Fields) > 0 {
		out := make([]*core.Field, 0, len(lookup.Fields))
		for _, name := range lookup.Fields {
			if field, ok := model.Schema.Fields[name]; ok && !field.HasFlag(core.FlagVirtual) {
				out = append(out, field)
			}
		}
		return out
	}
	out := make([]*core.Field, 0, len(model.Schema.Fields))
	for _, field := range model.Schema.OrderedFields() {
		if !field.HasFlag(core.FlagVirtual) {
			out = append(out, field)
		}
	}
	return out
}

// buildPredicate compiles a predicate tree to a SQL condition, appending
// bind values to argList. A nil or null predicate compiles to "1=1".
func buildPredicate(model *core.Model, p core.Predicate, argList *[]any) string {
	if p == nil || p.IsNull() {
		return "1=1"
	}

	switch node := p.(type) {
	case *core.QueryGroup:
		partList := make([]string, 0, len(node.Members))
		for _, member := range node.Members {
			partList = append(partList, buildPredicate(model, member, argList))
		}
		joiner := " AND "
		if node.Op == core.GroupOr {
			joiner = " OR "
		}
		return "(" + strings.Join(partList, joiner) + ")"

	case *core.Query:
		column := columnFor(model, node.Field)
		switch node.Op {
		case core.OpIs:
			if node.Value == nil {
				return column + " IS NULL"
			}
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s = $%d", column, len(*argList))
		case core.OpIsNot:
			if node.Value == nil {
				return column + " IS NOT NULL"
			}
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s <> $%d", column, len(*argList))
		case core.OpGt:
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s > $%d", column, len(*argList))
		case core.OpGte:
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s >= $%d", column, len(*argList))
		case core.OpLt:
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s < $%d", column, len(*argList))
		case core.OpLte:
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s <= $%d", column, len(*argList))
		case core.OpLike:
			*argList = append(*argList, node.Value)
			return fmt.Sprintf("%s ILIKE $%d", column, len(*argList))
		case core.OpIn:
			valueList, _ := node.Value.([]any)
			if len(valueList) == 0 {
				return "1=0"
			}
			placeholderList := make([]string, 0, len(valueList))
			for _, v := range valueList {
				*argList = append(*argList, v)
				placeholderList = append(placeholderList, fmt.Sprintf("$%d", len(*argList)))
			}
			return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", "))
		}
	}
	return "1=1"
}

// buildSelect assembles the full SELECT statement for a lookup.
func buildSelect(model *core.Model, lookup *core.Context, argList *[]any) string {
	fields := storedFields(model, lookup)
	columnNameList := make([]string, 0, len(fields))
	for _, field := range fields {
		columnNameList = append(columnNameList, fmt.Sprintf("%q", field.Column))
	}

	var builder strings.Builder
	builder.WriteString("SELECT ")
	if len(lookup.Distinct) > 0 {
		distinctList := make([]string, 0, len(lookup.Distinct))
		for _, name := range lookup.Distinct {
			distinctList = append(distinctList, columnFor(model, name))
		}
		builder.WriteString("DISTINCT ON (" + strings.Join(distinctList, ", ") + ") ")
	}
	builder.WriteString(strings.Join(columnNameList, ", "))
	builder.WriteString(" FROM " + tableFor(model, lookup))
	builder.WriteString(" WHERE " + buildPredicate(model, lookup.Where, argList))

	if len(lookup.Order) > 0 {
		orderPartList := make([]string, 0, len(lookup.Order))
		for _, entry := range lookup.Order {
			direction := "ASC"
			if entry.Direction == core.Desc {
				direction = "DESC"
			}
			orderPartList = append(orderPartList, columnFor(model, entry.Field)+" "+direction)
		}
		builder.WriteString(" ORDER BY " + strings.Join(orderPartList, ", "))
	}
	if limit := lookup.Limit(); limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	if start := lookup.Start(); start > 0 {
		builder.WriteString(fmt.Sprintf(" OFFSET %d", start))
	}
	return builder.String()
}

// fieldNameForColumn maps a returned column name back to its field name.
func fieldNameForColumn(model *core.Model, column string) string {
	for _, field := range model.Schema.Fields {
		if field.Column == column {
			return field.Name
		}
	}
	return column
}

// collectRows drains pgx rows into field-keyed mappings.
func collectRows(model *core.Model, rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	var resultList []map[string]any
	for rows.Next() {
		valueList, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rowMap := make(map[string]any, len(descriptions))
		for i, col := range descriptions {
			rowMap[fieldNameForColumn(model, string(col.Name))] = valueList[i]
		}
		resultList = append(resultList, rowMap)
	}
	return resultList, rows.Err()
}

// GetRecords runs the lookup as a SELECT and returns field-keyed rows.
func (s *Store) GetRecords(ctx context.Context, model *core.Model, lookup *core.Context) ([]map[string]any, error) {
	argList := []any{}
	sqlQuery := buildSelect(model, lookup, &argList)
	rows, err := s.query(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	return collectRows(model, rows)
}

// SaveRecord persists the record's pending changes: INSERT for records that
// have never been persisted, UPDATE keyed on the baseline key values
// otherwise. Both statements use RETURNING so generated keys and server-side
// defaults flow back as the authoritative values.
func (s *Store) SaveRecord(ctx context.Context, record *core.Record, lookup *core.Context) (map[string]any, error) {
	model := record.Model()
	changes := record.PendingChanges()

	returningList := []string{}
	for _, field := range model.Schema.OrderedFields() {
		if !field.HasFlag(core.FlagVirtual) {
			returningList = append(returningList, fmt.Sprintf("%q", field.Column))
		}
	}
	returning := " RETURNING " + strings.Join(returningList, ", ")

	argList := []any{}
	var sqlQuery string
	if record.IsNew() {
		columnList := make([]string, 0, len(changes))
		placeholderList := make([]string, 0, len(changes))
		for _, field := range model.Schema.OrderedFields() {
			value, ok := changes[field.Name]
			if !ok || field.HasFlag(core.FlagVirtual) {
				continue
			}
			argList = append(argList, value)
			columnList = append(columnList, fmt.Sprintf("%q", field.Column))
			placeholderList = append(placeholderList, fmt.Sprintf("$%d", len(argList)))
		}
		sqlQuery = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
			tableFor(model, lookup), strings.Join(columnList, ", "),
			strings.Join(placeholderList, ", "), returning)
	} else {
		setPartList := make([]string, 0, len(changes))
		for _, field := range model.Schema.OrderedFields() {
			value, ok := changes[field.Name]
			if !ok || field.HasFlag(core.FlagVirtual) {
				continue
			}
			argList = append(argList, value)
			setPartList = append(setPartList, fmt.Sprintf("%q = $%d", field.Column, len(argList)))
		}
		sqlQuery = fmt.Sprintf("UPDATE %s SET %s WHERE %s%s",
			tableFor(model, lookup), strings.Join(setPartList, ", "),
			keyCondition(model, record, &argList), returning)
	}

	rows, err := s.query(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	resultList, err := collectRows(model, rows)
	if err != nil {
		return nil, err
	}
	if len(resultList) == 0 {
		return map[string]any{}, nil
	}
	return resultList[0], nil
}

// DeleteRecord removes the record by its baseline key values and returns the
// affected row count.
func (s *Store) DeleteRecord(ctx context.Context, record *core.Record, lookup *core.Context) (int64, error) {
	model := record.Model()
	argList := []any{}
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s",
		tableFor(model, lookup), keyCondition(model, record, &argList))
	return s.execCount(ctx, sqlQuery, argList...)
}

// keyCondition compiles the record's baseline key values into a conjunction
// of equality checks.
func keyCondition(model *core.Model, record *core.Record, argList *[]any) string {
	state := record.BaselineState()
	partList := make([]string, 0, len(model.Schema.KeyFields))
	for _, field := range model.Schema.KeyFields {
		*argList = append(*argList, state[field.Name])
		partList = append(partList, fmt.Sprintf("%q = $%d", field.Column, len(*argList)))
	}
	if len(partList) == 0 {
		return "1=0"
	}
	return strings.Join(partList, " AND ")
}
