package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// openTestRepo creates a throwaway schema, applies the migrations and returns
// a repo whose connections resolve tables in that schema.
func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("SALON_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SALON_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(admin)
	})

	schema := "salon_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	err = admin.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		return applyMigrations(ctx, tx)
	})
	if err != nil {
		t.Fatalf("migrate error: %v", err)
	}

	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	db, err := Open(ctx, databaseURL+sep+"search_path="+schema, PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open schema error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})
	return NewRepo(db)
}

func TestPostgresIntegration_AppointmentKeyUniqueness(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	a, err := repo.UpsertAppointment(ctx, domain.Appointment{
		Date:        "2025-10-07",
		Time:        "09:00 am",
		StylistID:   "stylist-1",
		CustomerID:  "A",
		ServiceRefs: []string{"wash", "cut"},
		TotalPrice:  35000,
		Status:      domain.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("UpsertAppointment error: %v", err)
	}
	if a.ID == uuid.Nil || a.CreatedAt.IsZero() {
		t.Fatalf("saved = %+v, want id and created_at", a)
	}

	_, err = repo.UpsertAppointment(ctx, domain.Appointment{
		Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", CustomerID: "B", Status: domain.StatusConfirmed,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second booking err = %v, want %v", err, store.ErrConflict)
	}

	now := time.Now().UTC()
	a.Status = domain.StatusCancelled
	a.CancelReason = "sick"
	a.CancelledAt = &now
	if _, err := repo.UpsertAppointment(ctx, a); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	b, err := repo.UpsertAppointment(ctx, domain.Appointment{
		Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", CustomerID: "B", Status: domain.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("rebook after cancel error: %v", err)
	}

	got, err := repo.FindAppointments(ctx, store.AppointmentFilter{ID: a.ID})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(got) != 1 || got[0].Status != domain.StatusCancelled || got[0].CancelReason != "sick" {
		t.Fatalf("cancelled row = %+v", got)
	}
	if len(got[0].ServiceRefs) != 2 || got[0].ServiceRefs[0] != "wash" {
		t.Fatalf("service_refs = %v, want [wash cut]", got[0].ServiceRefs)
	}

	active, err := repo.FindAppointments(ctx, store.AppointmentFilter{Date: "2025-10-07", ActiveOnly: true})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("active = %+v, want only %s", active, b.ID)
	}
}

func TestPostgresIntegration_ConcurrentUpsertsOneWinner(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpsertAppointment(ctx, domain.Appointment{
				Date: "2025-10-08", Time: "12:00 pm", StylistID: "stylist-2",
				CustomerID: fmt.Sprintf("c-%d", i), Status: domain.StatusConfirmed,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("UpsertAppointment error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestPostgresIntegration_InsertNeverReplaces(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first, err := repo.InsertAppointment(ctx, domain.Appointment{
		Date: "2025-10-09", Time: "09:00 am", StylistID: "stylist-1", CustomerID: "A", Status: domain.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("InsertAppointment error: %v", err)
	}

	_, err = repo.InsertAppointment(ctx, domain.Appointment{
		ID: first.ID, Date: "2025-10-09", Time: "10:30 am", StylistID: "stylist-1", CustomerID: "A", Status: domain.StatusConfirmed,
	})
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("err = %v, want %v", err, store.ErrExists)
	}

	got, err := repo.FindAppointments(ctx, store.AppointmentFilter{ID: first.ID})
	if err != nil {
		t.Fatalf("FindAppointments error: %v", err)
	}
	if len(got) != 1 || got[0].Time != "09:00 am" {
		t.Fatalf("stored = %+v, want the first record unchanged", got)
	}
}

func TestPostgresIntegration_Blackouts(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	all, err := repo.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", StylistID: domain.StylistAll, Kind: domain.BlackoutUnavailable})
	if err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}
	if _, err := repo.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", Time: "09:00 am", StylistID: "stylist-1", Kind: domain.BlackoutBooked}); err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}
	if _, err := repo.UpsertBlackout(ctx, domain.BlackoutWindow{Date: "2025-10-07", StylistID: "stylist-2", Kind: domain.BlackoutUnavailable}); err != nil {
		t.Fatalf("UpsertBlackout error: %v", err)
	}

	scoped, err := repo.FindBlackouts(ctx, store.BlackoutFilter{Date: "2025-10-07", StylistID: "stylist-1"})
	if err != nil {
		t.Fatalf("FindBlackouts error: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("stylist-1 windows = %d, want 2", len(scoped))
	}
	for _, w := range scoped {
		if w.ID == all.ID && !w.WholeDay() {
			t.Fatalf("whole-day window came back with time %q", w.Time)
		}
	}

	n, err := repo.DeleteBlackouts(ctx, []uuid.UUID{all.ID, uuid.New()})
	if err != nil || n != 1 {
		t.Fatalf("DeleteBlackouts = %d, %v, want 1, nil", n, err)
	}
	if err := repo.DeleteBlackout(ctx, all.ID); err != nil {
		t.Fatalf("repeat DeleteBlackout error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
