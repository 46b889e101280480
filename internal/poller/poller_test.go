package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"carpark-vacancy-backend/config"
	"carpark-vacancy-backend/internal/model"
	"carpark-vacancy-backend/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Carpark{},
		&model.Snapshot{},
		&model.HourlyAggregate{},
		&model.PushSubscription{},
	))
	return store.NewGormStore(db)
}

func testConfig(providers ...config.ProviderConfig) *config.Config {
	return &config.Config{
		Poller: config.PollerConfig{
			Enabled:         true,
			IntervalSeconds: 300,
			Timezone:        "Asia/Hong_Kong",
			Providers:       providers,
		},
		WorkerPool: config.WorkerPoolConfig{Size: 2},
	}
}

func TestPollOnce_IngestsAndDeduplicates(t *testing.T) {
	payload := `{
		"results": [
			{"park_Id": "tdc1", "privateCar": [{"vacancy": 42, "lastupdate": "2026-08-25 08:01:30"}]},
			{"park_Id": "tdc2", "privateCar": [{"vacancy": 0, "lastupdate": "2026-08-25 08:02:00"}]}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(payload))
	}))
	defer server.Close()

	st := newTestStore(t)
	svc, err := NewService(testConfig(config.ProviderConfig{
		Name:    "gov",
		Adapter: "opendata",
		URL:     server.URL,
	}), st)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.PollOnce(ctx))

	all, err := st.AllSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Same payload again: provider timestamps unchanged, nothing new lands.
	require.NoError(t, svc.PollOnce(ctx))
	all, err = st.AllSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPollOnce_PostProviderWithPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"result": {"bays": [{"carpark_id": "W042", "guest_available_display": "10+", "guest_total": 150}]}}`))
	}))
	defer server.Close()

	st := newTestStore(t)
	svc, err := NewService(testConfig(config.ProviderConfig{
		Name:    "wilson",
		Adapter: "wilson",
		URL:     server.URL,
		Payload: map[string]any{"action": "carpark:available-bays", "args": map[string]any{}},
	}), st)
	require.NoError(t, err)

	require.NoError(t, svc.PollOnce(context.Background()))

	all, err := st.AllSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsCapped)
	assert.Equal(t, 10, *all[0].Available)
}

func TestPollOnce_OneProviderFailureDoesNotAbortOthers(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"park_Id": "tdc1", "privateCar": [{"vacancy": 5}]}]}`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	st := newTestStore(t)
	svc, err := NewService(testConfig(
		config.ProviderConfig{Name: "bad", Adapter: "wilson", URL: bad.URL},
		config.ProviderConfig{Name: "good", Adapter: "opendata", URL: good.URL},
	), st)
	require.NoError(t, err)

	require.NoError(t, svc.PollOnce(context.Background()))

	all, err := st.AllSnapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPollOnce_AllProvidersFailing(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	st := newTestStore(t)
	svc, err := NewService(testConfig(
		config.ProviderConfig{Name: "bad", Adapter: "opendata", URL: bad.URL},
	), st)
	require.NoError(t, err)

	assert.Error(t, svc.PollOnce(context.Background()))
}

func TestPollOnce_DispatchesFullToAvailableTransition(t *testing.T) {
	responses := []string{
		`{"results": [{"park_Id": "tdc1", "privateCar": [{"vacancy": 0, "lastupdate": "2026-08-25 08:00:00"}]}]}`,
		`{"results": [{"park_Id": "tdc1", "privateCar": [{"vacancy": 6, "lastupdate": "2026-08-25 08:05:00"}]}]}`,
	}
	var call int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		if call < len(responses)-1 {
			call++
		}
	}))
	defer server.Close()

	st := newTestStore(t)
	svc, err := NewService(testConfig(config.ProviderConfig{
		Name:    "gov",
		Adapter: "opendata",
		URL:     server.URL,
	}), st)
	require.NoError(t, err)

	ctx := context.Background()

	// Workers deliberately not started: jobs stay queued for inspection.
	require.NoError(t, svc.PollOnce(ctx))
	require.NoError(t, svc.PollOnce(ctx))

	select {
	case id := <-svc.pool.Jobs():
		assert.Equal(t, "tdc1", id)
	case <-time.After(time.Second):
		t.Fatal("expected an alert for the carpark that came back from full")
	}
}

func TestNewService_UnknownAdapter(t *testing.T) {
	st := newTestStore(t)
	_, err := NewService(testConfig(config.ProviderConfig{Name: "x", Adapter: "nope"}), st)
	assert.Error(t, err)
}

func TestRefreshRegistry_FromSeedCSV(t *testing.T) {
	seed := t.TempDir() + "/carparks.csv"
	require.NoError(t, os.WriteFile(seed, []byte("carpark_id,name_en,address_en\nW042,Harbour Centre,25 Harbour Road\n"), 0o644))

	st := newTestStore(t)
	cfg := testConfig()
	cfg.Poller.Registry.SeedCSV = seed

	svc, err := NewService(cfg, st)
	require.NoError(t, err)
	require.NoError(t, svc.RefreshRegistry(context.Background()))

	carparks, err := st.Carparks(context.Background())
	require.NoError(t, err)
	require.Len(t, carparks, 1)
	assert.Equal(t, "Harbour Centre", carparks[0].Name)
}

func TestRefreshRegistry_FromInfoEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"park_Id": "tdc1", "name": "City Hall", "displayAddress": "1 Edinburgh Place"}]}`))
	}))
	defer server.Close()

	st := newTestStore(t)
	cfg := testConfig()
	cfg.Poller.Registry.InfoURL = server.URL

	svc, err := NewService(cfg, st)
	require.NoError(t, err)
	require.NoError(t, svc.RefreshRegistry(context.Background()))

	carparks, err := st.Carparks(context.Background())
	require.NoError(t, err)
	require.Len(t, carparks, 1)
	assert.Equal(t, "City Hall", carparks[0].Name)
}

func TestRefreshRegistry_NoSourceConfigured(t *testing.T) {
	st := newTestStore(t)
	svc, err := NewService(testConfig(), st)
	require.NoError(t, err)
	assert.Error(t, svc.RefreshRegistry(context.Background()))
}
