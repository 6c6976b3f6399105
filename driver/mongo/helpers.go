// Package mongo provides the MongoDB store backend for orb3. This file
// contains helpers for translating lookup patterns and field names.
package mongo

import (
	"regexp"
	"strings"

	"github.com/orb-framework/orb3/core"
)

// toMongoLikePattern converts a SQL-like pattern into a MongoDB regex
// pattern: % becomes .* and _ becomes . while every other character is
// quoted literally.
//
// Example:
//
//	toMongoLikePattern("%admin_") == ".*admin."
func toMongoLikePattern(input string) string {
	const percent = "__PERCENT__"
	const underscore = "__UNDERSCORE__"
	safe := strings.ReplaceAll(input, "%", percent)
	safe = strings.ReplaceAll(safe, "_", underscore)
	safe = regexp.QuoteMeta(safe)
	safe = strings.ReplaceAll(safe, percent, ".*")
	safe = strings.ReplaceAll(safe, underscore, ".")
	return safe
}

// columnFor maps a field name to its backing document key. Unknown names
// fall back to the name itself.
func columnFor(model *core.Model, fieldName string) string {
	if field, ok := model.Schema.Fields[fieldName]; ok {
		return field.Column
	}
	return fieldName
}

// fieldNameForColumn maps a document key back to its field name.
func fieldNameForColumn(model *core.Model, column string) string {
	for _, field := range model.Schema.Fields {
		if field.Column == column {
			return field.Name
		}
	}
	return column
}
