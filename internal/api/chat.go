package api

import (
	"errors"
	"net/http"
	"strings"

	"sql-chat/internal/chat"
	"sql-chat/internal/database"
	"sql-chat/internal/sqldb"
	"sql-chat/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ChatService struct {
	manager *chat.ChatSessionManager
}

func NewChatService(manager *chat.ChatSessionManager) *ChatService {
	return &ChatService{manager: manager}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/sessions", RestHandler(s.GetSessions))
		r.Post("/sessions", RestHandler(s.StartSession))
		r.Get("/sessions/{session_id}", RestHandler(s.GetSession))
		r.Delete("/sessions/{session_id}", RestHandler(s.DeleteSession))
		r.Post("/sessions/{session_id}/rename", RestHandler(s.RenameSession))
		r.Post("/sessions/{session_id}/connect", RestHandler(s.Connect))
		r.Post("/sessions/{session_id}/disconnect", RestHandler(s.Disconnect))
		r.Get("/sessions/{session_id}/schema", RestHandler(s.GetSchema))
		r.Post("/sessions/{session_id}/messages", RestHandler(s.SendMessage))
		r.Post("/sessions/{session_id}/messages/stream", RestStreamHandler(s.StreamMessage))
		r.Get("/sessions/{session_id}/history", RestHandler(s.GetHistory))
	})
}

// sessionRequest resolves the caller and the session named in the URL.
func sessionRequest(r *http.Request) (string, uuid.UUID, error) {
	identity, err := requireIdentity(r)
	if err != nil {
		return "", uuid.Nil, err
	}
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return "", uuid.Nil, err
	}
	return identity.Username, sessionID, nil
}

func connectionInfo(p sqldb.ConnectionParams) api.ConnectionInfo {
	return api.ConnectionInfo{Driver: p.Driver, Host: p.Host, Port: p.Port, User: p.User, Database: p.Database}
}

func convertSession(record database.ChatSession) api.ChatSessionMetadata {
	metadata := api.ChatSessionMetadata{
		ID:           record.ID,
		Title:        record.Title,
		CreationTime: record.CreationTime,
	}
	if record.Driver != "" {
		metadata.Connection = &api.ConnectionInfo{
			Driver:   record.Driver,
			Host:     record.Host,
			Port:     record.Port,
			User:     record.DBUser,
			Database: record.DBName,
		}
	}
	return metadata
}

func convertTurns(turns []chat.Turn) []api.ChatHistoryItem {
	items := make([]api.ChatHistoryItem, 0, len(turns))
	for _, turn := range turns {
		items = append(items, api.ChatHistoryItem{
			MessageType: string(turn.Role),
			Content:     turn.Content,
			Timestamp:   turn.Timestamp,
			SQL:         turn.SQL,
			Error:       turn.Error,
		})
	}
	return items
}

func convertReply(reply chat.Reply, err error) api.ChatResponse {
	res := api.ChatResponse{
		Question: reply.Question,
		SQL:      reply.SQL,
		Result:   reply.Rows,
		Reply:    reply.Answer,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *ChatService) GetSessions(r *http.Request) (any, error) {
	identity, err := requireIdentity(r)
	if err != nil {
		return nil, err
	}

	sessions, err := s.manager.ListSessions(identity.Username)
	if err != nil {
		return nil, err
	}

	res := api.GetSessionsResponse{Sessions: make([]api.ChatSessionMetadata, 0, len(sessions))}
	for _, session := range sessions {
		res.Sessions = append(res.Sessions, convertSession(session))
	}
	return res, nil
}

func (s *ChatService) StartSession(r *http.Request) (any, error) {
	identity, err := requireIdentity(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.StartSessionRequest](r)
	if err != nil {
		return nil, err
	}

	record, err := s.manager.StartSession(identity.Username, req.Title)
	if err != nil {
		return nil, err
	}

	return api.StartSessionResponse{SessionID: record.ID.String(), Greeting: chat.Greeting}, nil
}

func (s *ChatService) GetSession(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	record, err := s.manager.GetRecord(owner, sessionID)
	if err != nil {
		return nil, err
	}
	session, err := s.manager.Session(owner, sessionID)
	if err != nil {
		return nil, err
	}

	metadata := convertSession(record)
	metadata.Connected = session.Connected()
	return metadata, nil
}

func (s *ChatService) DeleteSession(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}
	return nil, s.manager.Delete(owner, sessionID)
}

func (s *ChatService) RenameSession(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "title must not be empty")
	}

	return nil, s.manager.Rename(owner, sessionID, req.Title)
}

func (s *ChatService) Connect(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.ConnectRequest](r)
	if err != nil {
		return nil, err
	}

	handle, err := s.manager.Connect(r.Context(), owner, sessionID, sqldb.ConnectionParams{
		Driver:   req.Driver,
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Database: req.Database,
	})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			return nil, CodedErrorf(http.StatusBadGateway, "unable to connect to database: %w", err)
		}
		return nil, err
	}

	return api.ConnectResponse{
		Connection: connectionInfo(handle.Params()),
		Dialect:    handle.Dialect(),
		Tables:     handle.Tables(),
	}, nil
}

func (s *ChatService) Disconnect(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}
	return nil, s.manager.Disconnect(owner, sessionID)
}

func (s *ChatService) GetSchema(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	schema, tables, err := s.manager.Schema(r.Context(), owner, sessionID)
	if err != nil {
		return nil, err
	}
	return api.SchemaResponse{Schema: schema, Tables: tables}, nil
}

// isTurnFailure reports whether err came from a turn that ran and was
// recorded in the history, as opposed to a request that was refused.
func isTurnFailure(err error) bool {
	var stageErr *chat.StageError
	return errors.As(err, &stageErr)
}

// SendMessage runs one turn. A turn whose pipeline fails is still a valid
// exchange, so it is returned with status 200 and the error field set.
func (s *ChatService) SendMessage(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}

	reply, err := s.manager.Ask(r.Context(), owner, sessionID, req.Message, nil)
	if err != nil && !isTurnFailure(err) {
		return nil, err
	}

	return convertReply(reply, err), nil
}

// StreamMessage runs one turn and streams an event after each stage, ending
// with the full reply.
func (s *ChatService) StreamMessage(r *http.Request) (StreamResponse, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, chat.ErrEmptyQuestion
	}

	session, err := s.manager.Session(owner, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Connected() {
		return nil, chat.ErrNotConnected
	}

	return func(yield func(any, error) bool) {
		open := true
		observe := func(event chat.StageEvent) {
			if !open {
				return
			}
			open = yield(api.StageEvent{
				Stage:  string(event.Stage),
				SQL:    event.SQL,
				Result: event.Rows,
				Reply:  event.Answer,
			}, nil)
		}

		reply, err := session.Ask(r.Context(), req.Message, observe)
		if open {
			yield(convertReply(reply, err), err)
		}
	}, nil
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	owner, sessionID, err := sessionRequest(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.HistoryParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must not be negative")
	}

	turns, err := s.manager.History(owner, sessionID, params.Limit)
	if err != nil {
		return nil, err
	}
	return convertTurns(turns), nil
}
