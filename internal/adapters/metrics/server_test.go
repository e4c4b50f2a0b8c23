package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bnema/terms-cli/internal/adapters/logging"
	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterServesHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveMutation(domain.MutationReact, ports.OutcomeOK)

	srv, err := m.Serve("127.0.0.1:0", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `terms_mutations_total{kind="react",outcome="ok"} 1`)
}
