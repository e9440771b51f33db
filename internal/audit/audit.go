package audit

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pipeerp/internal/auth"
	"pipeerp/internal/models"
	"pipeerp/internal/websocket"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionExport   = "EXPORT"
	ActionLogin    = "LOGIN"
	ActionLogout   = "LOGOUT"
	ActionStatus   = "STATUS"
	ActionReserve  = "RESERVE"
	ActionRelease  = "UNRESERVE"
	ActionReceive  = "RECEIVE"
	ActionPayment  = "PAYMENT"
	ActionSweep    = "SWEEP"
	ActionRelocate = "RELOCATE"
)

// Logger writes audit rows and mirrors them to the event hub.
type Logger struct {
	DB  *sqlx.DB
	Hub *websocket.Hub
	Zap *zap.Logger
}

// Entry describes one committed change.
type Entry struct {
	Username string
	Action   string
	Module   string
	RecordID string
	Status   string
	Summary  string
}

// Record stores e and broadcasts it. Failures are logged, never returned:
// the change it describes has already been committed.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.Username == "" {
		e.Username = "system"
	}
	_, err := l.DB.ExecContext(ctx, "INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		e.Username, e.Action, e.Module, e.RecordID, e.Summary)
	if err != nil && l.Zap != nil {
		l.Zap.Error("audit log write failed", zap.Error(err), zap.String("module", e.Module), zap.String("record_id", e.RecordID))
	}
	if l.Hub != nil {
		l.Hub.Broadcast(websocket.Event{Type: e.Module, ID: e.RecordID, Action: e.Action, Status: e.Status})
	}
}

// Log records a change made by the request's user.
func (l *Logger) Log(r *http.Request, action, module, recordID, status, summary string) {
	l.Record(r.Context(), Entry{
		Username: Username(r),
		Action:   action,
		Module:   module,
		RecordID: recordID,
		Status:   status,
		Summary:  summary,
	})
}

// Username returns the authenticated user's name, or "system".
func Username(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.Username
	}
	return "system"
}

// Filter narrows List.
type Filter struct {
	Module   string
	RecordID string
	Username string
	Limit    int
}

// List returns audit rows, newest first.
func (l *Logger) List(ctx context.Context, f Filter) ([]models.AuditEntry, error) {
	query := "SELECT id, username, action, module, record_id, summary, created_at FROM audit_log WHERE 1=1"
	var args []interface{}
	if f.Module != "" {
		query += " AND module = ?"
		args = append(args, f.Module)
	}
	if f.RecordID != "" {
		query += " AND record_id = ?"
		args = append(args, f.RecordID)
	}
	if f.Username != "" {
		query += " AND username = ?"
		args = append(args, f.Username)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, f.Limit)

	entries := []models.AuditEntry{}
	if err := l.DB.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}
