package chat

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

const sqlTemplate = `You are a helpful SQL assistant. You are helping a user run SQL queries on a database.
Based on the database schema below, write a SQL query to help the user.
You must take the history of the chat and use it to help the user.

<database schema>{{.schema}}</database schema>

Conversation history: {{.chat_history}}

Write the SQL query and nothing else. Do not wrap the query in a code block or any other markdown formatting.

Examples:
User query: "What are the names of the Artist in the database?"
SQL query: "SELECT FirstName, LastName FROM Artist"
User query: "Which 3 artists have the most tracks?"
SQL query: "SELECT ArtistId, COUNT(*) as TrackCount FROM Tracks GROUP BY ArtistId ORDER BY TrackCount DESC LIMIT 3"

Your turn:
User query: {{.question}}
SQL query: `

const responseTemplate = `You are a helpful SQL assistant. You are helping a user run SQL queries on a database.
Based on the database schema, chat history, user query and sql query, write a response to the user in a natural language.
Limit your answer to just the result of the SQL query only.

<database schema>{{.schema}}</database schema>
Conversation history: {{.chat_history}}
User query: {{.question}}
<sql query>{{.query}}</sql query>

SQL response:{{.response}}`

var (
	sqlPrompt      = prompts.NewPromptTemplate(sqlTemplate, []string{"schema", "chat_history", "question"})
	responsePrompt = prompts.NewPromptTemplate(responseTemplate, []string{"schema", "chat_history", "question", "query", "response"})
)

func RenderSQLPrompt(schema string, history *History, question Question) (string, error) {
	out, err := sqlPrompt.Format(map[string]any{
		"schema":       schema,
		"chat_history": history.String(),
		"question":     string(question),
	})
	if err != nil {
		return "", fmt.Errorf("error rendering sql prompt: %w", err)
	}
	return out, nil
}

func RenderResponsePrompt(schema string, history *History, result QueryResult) (string, error) {
	out, err := responsePrompt.Format(map[string]any{
		"schema":       schema,
		"chat_history": history.String(),
		"question":     string(result.Question),
		"query":        result.SQL,
		"response":     result.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("error rendering response prompt: %w", err)
	}
	return out, nil
}
