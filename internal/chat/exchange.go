package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reply is the outcome of one turn. Answer is the text shown to the user; on
// failure it explains what went wrong.
type Reply struct {
	Question string
	SQL      string
	Rows     string
	Answer   string
	Turns    []Turn
}

// Exchange is one question and the answer to it, not yet recorded.
type Exchange struct {
	Human Turn
	AI    Turn
	Reply Reply
}

// Exchange runs question through the pipeline against history with the human
// turn appended, and returns both turns without touching history. A pipeline
// failure still yields an AI turn explaining it, alongside the error. Only an
// empty question yields no turns.
func (p *Pipeline) Exchange(ctx context.Context, db Database, history *History, question string, observe Observer) (Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Exchange{}, ErrEmptyQuestion
	}

	human := Turn{Role: RoleHuman, Content: question, Timestamp: time.Now().UTC()}
	answer, runErr := p.Run(ctx, db, history.with(human), Question(question), observe)

	ai := Turn{Role: RoleAI, Content: answer.Text, SQL: answer.SQL, Timestamp: time.Now().UTC()}
	if runErr != nil {
		ai.Content = FailureMessage(runErr)
		ai.Error = runErr.Error()
	}

	return Exchange{
		Human: human,
		AI:    ai,
		Reply: Reply{Question: question, SQL: answer.SQL, Rows: answer.Rows, Answer: ai.Content},
	}, runErr
}

// FailureMessage is the AI turn text for a turn that failed with err.
func FailureMessage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case StageValidate:
			return fmt.Sprintf("I can't run that query: %v", stageErr.Err)
		case StageExecute:
			return fmt.Sprintf("The query failed: %v", stageErr.Err)
		}
	}
	return fmt.Sprintf("Sorry, I couldn't answer that: %v", err)
}
