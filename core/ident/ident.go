// Package ident parses and formats schema-qualified SQLite identifiers.
//
// An identifier is one or two dot-separated segments. Each segment is either
// a bare word or a quoted name using double quotes, backticks or square
// brackets; inside double quotes and backticks the delimiter is escaped by
// doubling it. A single segment names an object with no schema; two segments
// name schema and object.
package ident

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/attachdb/core/errors"
)

// QualifiedName is an object name with an optional schema prefix.
// An empty Schema means the schema was not specified and is left for the
// resolver to decide.
type QualifiedName struct {
	Schema string
	Name   string
}

// HasSchema reports whether the schema was given explicitly.
func (q QualifiedName) HasSchema() bool {
	return q.Schema != ""
}

// String renders the name in quoted form so that Parse(q.String()) == q.
func (q QualifiedName) String() string {
	return Format(q.Schema, q.Name)
}

// identifier is the participle grammar for a possibly-qualified name.
type identifier struct {
	Parts []*segment `@@ ( "." @@ )*`
}

type segment struct {
	Quoted   *string `  @Quoted`
	Backtick *string `| @Backtick`
	Bracket  *string `| @Bracket`
	Bare     *string `| @Bare`
}

func (s *segment) value() string {
	switch {
	case s.Quoted != nil:
		return unescape(*s.Quoted, `"`)
	case s.Backtick != nil:
		return unescape(*s.Backtick, "`")
	case s.Bracket != nil:
		v := *s.Bracket
		return v[1 : len(v)-1]
	case s.Bare != nil:
		return *s.Bare
	}
	return ""
}

// unescape strips the outer delimiters and collapses doubled delimiters.
func unescape(v, delim string) string {
	inner := v[1 : len(v)-1]
	return strings.ReplaceAll(inner, delim+delim, delim)
}

var identLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Quoted", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Backtick", Pattern: "`(?:[^`]|``)*`"},
	{Name: "Bracket", Pattern: `\[[^\]]*\]`},
	{Name: "Bare", Pattern: "[^\\s.\"`\\[\\]]+"},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var identParser = participle.MustBuild[identifier](
	participle.Lexer(identLexer),
	participle.Elide("Whitespace"),
)

// Parse splits raw into an optional schema and an object name.
func Parse(raw string) (QualifiedName, error) {
	if strings.TrimSpace(raw) == "" {
		return QualifiedName{}, errors.NewMalformed(raw, "empty identifier")
	}

	id, err := identParser.ParseString("", raw)
	if err != nil {
		return QualifiedName{}, &errors.MalformedIdentifierError{
			Raw:    raw,
			Reason: "unbalanced quoting or stray separator",
			Err:    err,
		}
	}
	if len(id.Parts) > 2 {
		return QualifiedName{}, errors.NewMalformed(raw, "more than one unquoted separator")
	}

	values := make([]string, len(id.Parts))
	for i, part := range id.Parts {
		values[i] = part.value()
		if values[i] == "" {
			return QualifiedName{}, errors.NewMalformed(raw, "empty name segment")
		}
	}

	if len(values) == 1 {
		return QualifiedName{Name: values[0]}, nil
	}
	return QualifiedName{Schema: values[0], Name: values[1]}, nil
}

// ParseBare parses raw and rejects it unless it carries no schema.
func ParseBare(raw string) (string, error) {
	q, err := Parse(raw)
	if err != nil {
		return "", err
	}
	if q.HasSchema() {
		return "", errors.NewMalformed(raw, "schema prefix not allowed here")
	}
	return q.Name, nil
}

// Quote returns name as a double-quoted SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Format renders schema and name as a quoted, dot-separated identifier.
// An empty schema yields just the quoted name.
func Format(schema, name string) string {
	if schema == "" {
		return Quote(name)
	}
	return Quote(schema) + "." + Quote(name)
}

// QuoteList quotes each name and joins them with ", ".
func QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, ", ")
}
