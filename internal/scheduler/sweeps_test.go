package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/billing"
)

// fakeSweepDB serves pre-canned pause pages per organization and records
// the keyset cursor of every call.
type fakeSweepDB struct {
	mu sync.Mutex

	demoOrgs   []string
	lapsedOrgs []string
	listErr    error

	pages    map[string][][]string
	pauseErr map[string]error
	cursors  map[string][]string

	gotGrantingPlans []string
}

func newFakeSweepDB() *fakeSweepDB {
	return &fakeSweepDB{
		pages:    map[string][][]string{},
		pauseErr: map[string]error{},
		cursors:  map[string][]string{},
	}
}

func (f *fakeSweepDB) ListExpiredDemoOrgIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return f.demoOrgs, f.listErr
}

func (f *fakeSweepDB) ListNonGrantingOrgIDs(ctx context.Context, now time.Time, grantingPlans []string, limit int) ([]string, error) {
	f.mu.Lock()
	f.gotGrantingPlans = grantingPlans
	f.mu.Unlock()
	return f.lapsedOrgs, f.listErr
}

func (f *fakeSweepDB) PauseGeneratedBatch(ctx context.Context, orgID, afterID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors[orgID] = append(f.cursors[orgID], afterID)
	if err := f.pauseErr[orgID]; err != nil {
		return nil, err
	}
	remaining := f.pages[orgID]
	if len(remaining) == 0 {
		return nil, nil
	}
	f.pages[orgID] = remaining[1:]
	return remaining[0], nil
}

func TestPauseExpiredDemos_PagesThroughAllTickets(t *testing.T) {
	fdb := newFakeSweepDB()
	fdb.demoOrgs = []string{"org_1"}
	fdb.pages["org_1"] = [][]string{
		{"tkt_a", "tkt_c", "tkt_b"},
		{"tkt_d"},
	}

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	result, err := sweeper.PauseExpiredDemos(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Organizations: 1, TicketsPaused: 4}, result)

	// Keyset cursor advances past the highest ID of each unordered page.
	assert.Equal(t, []string{"", "tkt_c", "tkt_d"}, fdb.cursors["org_1"])
}

func TestPauseExpiredDemos_NothingToPause(t *testing.T) {
	fdb := newFakeSweepDB()
	fdb.demoOrgs = []string{"org_1"}

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	result, err := sweeper.PauseExpiredDemos(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Organizations: 1}, result)
}

func TestPauseEntitlementLapsed_FailureIsolatedPerTenant(t *testing.T) {
	fdb := newFakeSweepDB()
	fdb.lapsedOrgs = []string{"org_bad", "org_good"}
	fdb.pauseErr["org_bad"] = errors.New("lock timeout")
	fdb.pages["org_good"] = [][]string{{"tkt_1", "tkt_2"}}

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	result, err := sweeper.PauseEntitlementLapsed(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Organizations)
	assert.Equal(t, 2, result.TicketsPaused)
	assert.Equal(t, 1, result.Failed)
}

func TestPauseEntitlementLapsed_SweepsPlansWithoutFeature(t *testing.T) {
	fdb := newFakeSweepDB()
	// An active free-tier org: granting status, but the plan carries no
	// recurring generation, so the listing must still target it.
	fdb.lapsedOrgs = []string{"org_free"}
	fdb.pages["org_free"] = [][]string{{"tkt_1"}}

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	result, err := sweeper.PauseEntitlementLapsed(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Organizations: 1, TicketsPaused: 1}, result)

	// The sweep asks the store to exclude exactly the plans that grant
	// the feature; free is not among them, so active free orgs match.
	assert.NotContains(t, fdb.gotGrantingPlans, "free")
	assert.ElementsMatch(t,
		[]string{"starter", "pro", "business", "enterprise"},
		fdb.gotGrantingPlans)
}

func TestPauseEntitlementLapsed_ListErrorAbortsSweep(t *testing.T) {
	fdb := newFakeSweepDB()
	fdb.listErr = errors.New("db down")

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	_, err := sweeper.PauseEntitlementLapsed(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestPauseAll_BoundedConcurrencyProcessesEveryTenant(t *testing.T) {
	fdb := newFakeSweepDB()
	for i := 0; i < 20; i++ {
		orgID := fmt.Sprintf("org_%02d", i)
		fdb.demoOrgs = append(fdb.demoOrgs, orgID)
		fdb.pages[orgID] = [][]string{{fmt.Sprintf("tkt_%02d", i)}}
	}

	sweeper := NewEntitlementSweeper(fdb, billing.NewStaticCatalog(), nil)
	result, err := sweeper.PauseExpiredDemos(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Organizations: 20, TicketsPaused: 20}, result)
}
