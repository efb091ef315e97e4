package service

import (
	"bitwise74/docstring-api/db"
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/security"
	"bitwise74/docstring-api/pkg/util"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Noon keeps the fixed clock far away from midnight
var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.Local)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.New("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)

	// Shared cache sqlite reports lock errors instead of waiting, a single
	// connection serializes everything
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return conn
}

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testArgon() *security.ArgonHash {
	a := security.New()
	a.Memory = 8 * 1024
	a.Iterations = 1
	return a
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   atomic.Int32
	prompts []string
	out     string
	err     error
	block   bool
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	if f.err != nil {
		return "", f.err
	}

	if f.out == "" {
		return `"""Adds two numbers."""`, nil
	}

	return f.out, nil
}

var errUpstream = errors.New("upstream exploded")

func seedIdentity(t *testing.T, conn *gorm.DB, i model.Identity) *model.Identity {
	t.Helper()

	if i.ID == "" {
		id, err := util.NewID()
		require.NoError(t, err)
		i.ID = id
	}

	if i.Role == "" {
		i.Role = model.RoleGuest
	}

	if i.Plan == "" {
		i.Plan = model.PlanFree
	}

	if i.IPAddress == "" {
		i.IPAddress = "10.0.0.1"
	}

	if i.LastResetDate.IsZero() {
		i.LastResetDate = testNow.UTC()
	}

	if i.JoinedAt.IsZero() {
		i.JoinedAt = testNow.UTC()
	}

	require.NoError(t, conn.Create(&i).Error)
	return &i
}

func email(s string) *string {
	return &s
}
