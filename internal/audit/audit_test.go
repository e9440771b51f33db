package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/auth"
	"pipeerp/internal/database"
)

func TestRecordAndList(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	l := &Logger{DB: db}
	ctx := context.Background()

	l.Record(ctx, Entry{Action: ActionCreate, Module: "sales_order", RecordID: "SO-2026-0001", Summary: "created"})

	r := httptest.NewRequest("POST", "/api/v1/sales-orders/SO-2026-0001/confirm", nil)
	r = r.WithContext(auth.WithUser(r.Context(), &auth.User{ID: 2, Username: "meera", Role: auth.RoleSales}))
	l.Log(r, ActionStatus, "sales_order", "SO-2026-0001", "CONFIRMED", "DRAFT -> CONFIRMED")
	l.Log(r, ActionCreate, "invoice", "INV-2026-0001", "DRAFT", "created")

	all, err := l.List(ctx, Filter{RecordID: "SO-2026-0001"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "meera", all[0].Username)
	assert.Equal(t, ActionStatus, all[0].Action)
	assert.Equal(t, "system", all[1].Username)

	byUser, err := l.List(ctx, Filter{Username: "meera", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "INV-2026-0001", byUser[0].RecordID)
}

func TestUsernameDefaultsToSystem(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "system", Username(r))
}
