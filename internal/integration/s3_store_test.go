package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/plant-monitor/internal/config"
)

type capturedPut struct {
	path        string
	contentType string
	body        string
}

func newS3Stub(t *testing.T, status int) (*httptest.Server, *[]capturedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []capturedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method == http.MethodPut {
			mu.Lock()
			puts = append(puts, capturedPut{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(body)})
			mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &puts
}

func testArchiveConfig(endpoint string) config.ArchiveConfig {
	return config.ArchiveConfig{
		Bucket:          "plants-archive",
		Region:          "eu-west-2",
		Endpoint:        endpoint,
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.ArchiveConfig{})
	assert.Error(t, err)
}

func TestS3Store_Put(t *testing.T) {
	srv, puts := newS3Stub(t, http.StatusOK)

	store, err := newS3Store(context.Background(), testArchiveConfig(srv.URL), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "plants-archive", store.Bucket())

	err = store.Put(context.Background(), "archive/plants.csv", []byte("plant_entry_id\n1\n"), "text/csv")
	require.NoError(t, err)

	require.Len(t, *puts, 1)
	got := (*puts)[0]
	assert.Equal(t, "/plants-archive/archive/plants.csv", got.path)
	assert.Equal(t, "text/csv", got.contentType)
	assert.Contains(t, got.body, "plant_entry_id")
}

func TestS3Store_PutError(t *testing.T) {
	srv, _ := newS3Stub(t, http.StatusForbidden)

	store, err := newS3Store(context.Background(), testArchiveConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	err = store.Put(context.Background(), "archive/plants.csv", []byte("x"), "")
	assert.ErrorContains(t, err, "s3://plants-archive/archive/plants.csv")
}
