package consul

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent answers the few agent endpoints the package calls.
type fakeAgent struct {
	mu           sync.Mutex
	registered   *consulapi.AgentServiceRegistration
	deregistered string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/v1/agent/service/register":
		var reg consulapi.AgentServiceRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.registered = &reg
	case r.Method == http.MethodPut && len(r.URL.Path) > len("/v1/agent/service/deregister/"):
		f.deregistered = r.URL.Path[len("/v1/agent/service/deregister/"):]
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setupConsul(t *testing.T) (*consulapi.Client, *fakeAgent) {
	agent := &fakeAgent{}
	srv := httptest.NewServer(agent)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.Listener.Addr().String())
	require.NoError(t, err)
	return client, agent
}

func TestRegisterService(t *testing.T) {
	client, agent := setupConsul(t)

	deregister, err := RegisterService(client, Registration{ServiceName: "shop", Host: "localhost", Port: 8080})
	require.NoError(t, err)

	require.NotNil(t, agent.registered)
	assert.Equal(t, "shop-localhost-8080", agent.registered.ID)
	assert.Equal(t, "http://localhost:8080/ping", agent.registered.Check.HTTP)

	require.NoError(t, deregister())
	assert.Equal(t, "shop-localhost-8080", agent.deregistered)
}

func TestRegisterService_NilClient(t *testing.T) {
	_, err := RegisterService(nil, Registration{ServiceName: "shop"})
	assert.Error(t, err)
}
