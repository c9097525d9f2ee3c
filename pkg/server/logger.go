package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mikeboe/research-canvas/pkg/database"
)

// DBLogHandler forwards records to another handler and also writes the ones
// carrying a "session" attribute to research_logs.
type DBLogHandler struct {
	DB      *database.PostgresDB
	next    slog.Handler
	session string
	attrs   map[string]interface{}
}

func NewDBLogHandler(db *database.PostgresDB, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{DB: db, next: next, attrs: map[string]interface{}{}}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)

	session := h.session
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "session" {
			session = a.Value.String()
			return true
		}
		attrs[a.Key] = logValue(a.Value)
		return true
	})
	if session == "" || h.DB == nil {
		return err
	}

	metaJSON, mErr := json.Marshal(attrs)
	if mErr != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (session_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	// Records outlive the request context.
	if _, dbErr := h.DB.Pool.Exec(context.Background(), query, session, r.Time, r.Level.String(), r.Message, metaJSON); dbErr != nil && err == nil {
		err = dbErr
	}
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &DBLogHandler{
		DB:      h.DB,
		next:    h.next.WithAttrs(attrs),
		session: h.session,
		attrs:   make(map[string]interface{}, len(h.attrs)+len(attrs)),
	}
	for k, v := range h.attrs {
		out.attrs[k] = v
	}
	for _, a := range attrs {
		if a.Key == "session" {
			out.session = a.Value.String()
			continue
		}
		out.attrs[a.Key] = logValue(a.Value)
	}
	return out
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	return &DBLogHandler{DB: h.DB, next: h.next.WithGroup(name), session: h.session, attrs: h.attrs}
}

func logValue(v slog.Value) interface{} {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
