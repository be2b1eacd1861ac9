package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burgershop/order-service/internal/domain/auth"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	tr := NewTransport(h, TransportOptions{AdminGroup: "admin"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := auth.Role(r.URL.Query().Get("role"))
		if role == "" {
			tr.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: "u-" + string(role), Role: role})
		tr.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?role=" + role
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitMembers(t *testing.T, h *Hub, group string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.Members(group) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readMessage(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestTransport_AdminReceivesEvents(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	ws := dial(t, srv, "admin")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"join","group":"admin"}`)))
	waitMembers(t, h, "admin", 1)

	h.Publish("admin", testEvent{N: 3})
	assert.JSONEq(t, `{"event":"test","data":{"n":3}}`, readMessage(t, ws))
}

func TestTransport_LegacyJoin(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	ws := dial(t, srv, "admin")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`join_admin_room`)))
	waitMembers(t, h, "admin", 1)
}

func TestTransport_CustomerCannotJoinAdmin(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	ws := dial(t, srv, "customer")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"join","group":"admin"}`)))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"not authorized to join admin"}}`,
		readMessage(t, ws),
	)
	assert.Equal(t, 0, h.Members("admin"))
}

func TestTransport_BadFrame(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	ws := dial(t, srv, "admin")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`hi`)))
	assert.JSONEq(t,
		`{"event":"error","data":{"message":"unrecognized message"}}`,
		readMessage(t, ws),
	)
}

func TestTransport_DisconnectLeavesGroup(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	ws := dial(t, srv, "admin")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"join","group":"admin"}`)))
	waitMembers(t, h, "admin", 1)

	require.NoError(t, ws.Close())
	waitMembers(t, h, "admin", 0)
}

func TestTransport_RequiresIdentity(t *testing.T) {
	h := newTestHub(t, 8)
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notify:admin", Channel("admin"))
}
