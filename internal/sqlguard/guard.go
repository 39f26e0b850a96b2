// Package sqlguard decides whether a generated SQL statement is safe to run
// against a user's database. Only single, read-only statements pass.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

var ErrRejected = errors.New("sql statement rejected")

// Statements are lexed twice: once the MySQL way, where a backslash escapes
// the next character in a string and # starts a comment, and once the
// standard way (SQLite, Postgres), where neither holds. A statement has to
// pass under both readings, so no dialect can run a second statement the
// other reading hid inside a string or comment.
var (
	mysqlLexer    = newSQLLexer(`'(?:[^'\\]|\\.|'')*'`, `--[^\n]*|#[^\n]*|/\*[\s\S]*?\*/`)
	standardLexer = newSQLLexer(`'(?:[^']|'')*'`, `--[^\n]*|/\*[\s\S]*?\*/`)
)

type sqlLexer struct {
	def       *lexer.StatefulDefinition
	ident     lexer.TokenType
	semicolon lexer.TokenType
	paren     lexer.TokenType
	skipped   map[lexer.TokenType]bool
}

func newSQLLexer(stringPattern, commentPattern string) *sqlLexer {
	def := lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: commentPattern},
		{Name: "String", Pattern: stringPattern},
		{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")*\"|`[^`]*`|\\[[^\\]]*\\]"},
		{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]*)?(?:[eE][-+]?[0-9]+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_$]*`},
		{Name: "Semicolon", Pattern: `;`},
		{Name: "Paren", Pattern: `[()]`},
		{Name: "Punct", Pattern: `[-+*/%=<>!|&^~,.:?@]+|[^\s()]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
	symbols := def.Symbols()
	return &sqlLexer{
		def:       def,
		ident:     symbols["Ident"],
		semicolon: symbols["Semicolon"],
		paren:     symbols["Paren"],
		skipped: map[lexer.TokenType]bool{
			symbols["Comment"]:    true,
			symbols["Whitespace"]: true,
			lexer.EOF:             true,
		},
	}
}

var defaultAllowed = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

var defaultForbidden = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE", "REPLACE",
	"MERGE", "GRANT", "REVOKE", "CALL", "EXEC", "EXECUTE", "ATTACH", "DETACH",
	"PRAGMA", "LOCK", "UNLOCK", "SET", "INTO", "LOAD", "HANDLER", "RENAME", "COPY",
	"VACUUM",
}

// Guard is safe for concurrent use.
type Guard struct {
	allowed   map[string]struct{}
	forbidden map[string]struct{}
}

func New() *Guard {
	return &Guard{
		allowed:   toSet(defaultAllowed),
		forbidden: toSet(defaultForbidden),
	}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// Check returns nil if sql is a single statement that starts with an allowed
// keyword and mentions no forbidden keyword outside of strings, quoted
// identifiers and comments. Trailing semicolons are accepted.
func (g *Guard) Check(sql string) error {
	for _, lex := range []*sqlLexer{standardLexer, mysqlLexer} {
		if err := g.check(lex, sql); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) check(lex *sqlLexer, sql string) error {
	tokens, err := lex.significantTokens(sql)
	if err != nil {
		return reject("unable to tokenize statement: %v", err)
	}

	for len(tokens) > 0 && tokens[len(tokens)-1].Type == lex.semicolon {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return reject("empty statement")
	}

	for _, tok := range tokens {
		if tok.Type == lex.semicolon {
			return reject("multiple statements are not allowed")
		}
	}

	start := 0
	for start < len(tokens) && tokens[start].Type == lex.paren && tokens[start].Value == "(" {
		start++
	}
	if start == len(tokens) || tokens[start].Type != lex.ident {
		return reject("statement does not start with a keyword")
	}
	if first := strings.ToUpper(tokens[start].Value); !g.isAllowed(first) {
		return reject("%s statements are not allowed", first)
	}

	for i, tok := range tokens {
		if tok.Type != lex.ident {
			continue
		}
		word := strings.ToUpper(tok.Value)
		if _, ok := g.forbidden[word]; !ok {
			continue
		}
		// REPLACE(str, from, to) is a string function in every supported dialect.
		if word == "REPLACE" && i+1 < len(tokens) && tokens[i+1].Value == "(" {
			continue
		}
		return reject("keyword %s is not allowed", word)
	}

	return nil
}

func (g *Guard) isAllowed(word string) bool {
	_, ok := g.allowed[word]
	return ok
}

// Clean trims whitespace and trailing semicolons from sql.
func Clean(sql string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n"))
}

func (l *sqlLexer) significantTokens(sql string) ([]lexer.Token, error) {
	lex, err := l.def.LexString("", sql)
	if err != nil {
		return nil, err
	}
	all, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}

	tokens := make([]lexer.Token, 0, len(all))
	for _, tok := range all {
		if !l.skipped[tok.Type] {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}
