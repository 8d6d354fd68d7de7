package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefline/chloe-voice/internal/dialog"
	"github.com/reliefline/chloe-voice/internal/store"
	"github.com/reliefline/chloe-voice/pkg/logging"
)

type fakeChat struct{ text string }

func (f *fakeChat) Chat(context.Context, dialog.ChatRequest) (*dialog.ChatReply, error) {
	return &dialog.ChatReply{Text: f.text}, nil
}

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	logger := logging.New("error")

	st, err := store.New(t.TempDir(), "Foreclosure Relief Group", loc, logger)
	require.NoError(t, err)

	ctrl := dialog.NewController(st, &fakeChat{text: "Happy to help."}, nil, nil, logger, dialog.Options{
		OrgName:       "Foreclosure Relief Group",
		AssistantName: "Chloe",
		Location:      loc,
	})

	h := NewHandler(Config{
		Controller: ctrl,
		Store:      st,
		Logger:     logger,
		RelayURL:   "wss://example.com/relay",
		AppVersion: "1.2.3",
		GitCommit:  "deadbeef",
		Registry:   prometheus.NewRegistry(),
	})
	return h, st
}

func TestRootAndVersion(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestVoiceWebhookReturnsRelayTwiML(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/voice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<ConversationRelay url="wss://example.com/relay"`)
	assert.Contains(t, body, `<Language code="en-US" voice="Joanna-Neural" />`)
	assert.Contains(t, body, `<Language code="es-US" voice="Lupe-Neural" />`)
}

func TestReportEndpoint(t *testing.T) {
	h, st := newTestHandler(t)
	loc, _ := time.LoadLocation("America/Los_Angeles")

	_, err := st.CommitBooking(context.Background(), store.BookingRequest{
		Start:   time.Date(2026, 3, 5, 13, 0, 0, 0, loc),
		Name:    "John Smith",
		Address: "123 Main St",
		Phone:   "+15595550134",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/2026-03-05.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "John Smith")

	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/not-a-date.csv", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarEndpoint(t *testing.T) {
	h, st := newTestHandler(t)
	loc, _ := time.LoadLocation("America/Los_Angeles")

	booked, err := st.CommitBooking(context.Background(), store.BookingRequest{
		Start:   time.Date(2026, 3, 5, 13, 0, 0, 0, loc),
		Name:    "John Smith",
		Address: "123 Main St",
		Phone:   "+15595550134",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar/"+booked.ID+".ics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")

	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar/..%2fsecret.ics", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)

	// Well-formed but unknown id.
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar/0123456789ab.ics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/relay"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestRelaySocketGreetsAndSwitchesLanguage(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialRelay(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "setup", "from": "+15595550134"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "text", frame["type"])
	assert.Contains(t, frame["token"], "Chloe")
	assert.Equal(t, true, frame["last"])

	// A language choice produces the switch frame first, then the ack.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "prompt", "voicePrompt": "Spanish please"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "language", frame["type"])
	assert.Equal(t, "es-US", frame["ttsLanguage"])
	frame = readFrame(t, conn)
	assert.Equal(t, "text", frame["type"])
}

func TestRelaySocketInterruptAck(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialRelay(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "setup", "from": "+15595550134"}))
	readFrame(t, conn) // greeting

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "interrupt", "utteranceUntilInterrupt": "wait"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "text", frame["type"])
	assert.NotEmpty(t, frame["token"])
}
