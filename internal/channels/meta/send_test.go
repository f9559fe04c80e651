package meta

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnibothq/omnibot/internal/bus"
	"github.com/omnibothq/omnibot/internal/store"
)

func TestResolveToken(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		settings map[string]string
		fallback string
		want     string
	}{
		{
			"facebook own token",
			"facebook",
			map[string]string{store.SettingFacebookToken: "fb-tok", store.SettingMetaLegacyToken: "legacy"},
			"", "fb-tok",
		},
		{
			"facebook legacy token",
			"facebook",
			map[string]string{store.SettingMetaLegacyToken: "legacy"},
			"", "legacy",
		},
		{
			"instagram own token",
			"instagram",
			map[string]string{store.SettingInstagramToken: "ig-tok", store.SettingFacebookToken: "fb-tok"},
			"", "ig-tok",
		},
		{
			"instagram borrows facebook token",
			"instagram",
			map[string]string{store.SettingFacebookToken: "fb-tok"},
			"", "fb-tok",
		},
		{"config fallback", "facebook", map[string]string{}, "cfg-tok", "cfg-tok"},
		{"nothing", "facebook", map[string]string{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveToken(tt.platform, tt.settings, tt.fallback); got != tt.want {
				t.Errorf("resolveToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFactorySkipsScopeWithoutToken(t *testing.T) {
	ch, err := Factory("facebook", "")(nil, map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if ch != nil {
		t.Errorf("channel = %v, want nil for missing token", ch)
	}
}

type graphCall struct {
	query string
	body  map[string]any
}

func newGraphStub(t *testing.T) (*[]graphCall, *httptest.Server) {
	t.Helper()
	calls := &[]graphCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		*calls = append(*calls, graphCall{query: r.URL.RawQuery, body: body})
		w.Write([]byte(`{"message_id":"mid.1"}`))
	}))
	return calls, srv
}

func TestSendText(t *testing.T) {
	calls, srv := newGraphStub(t)
	defer srv.Close()

	c := New("facebook", nil, "tok-123")
	c.apiBase = srv.URL

	if err := c.Send(t.Context(), "psid-1", bus.Reply{Text: "hola"}); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(*calls))
	}
	call := (*calls)[0]
	if call.query != "access_token=tok-123" {
		t.Errorf("query = %q", call.query)
	}
	recipient := call.body["recipient"].(map[string]any)
	if recipient["id"] != "psid-1" {
		t.Errorf("recipient = %v", recipient)
	}
	msg := call.body["message"].(map[string]any)
	if msg["text"] != "hola" {
		t.Errorf("message = %v", msg)
	}
}

func TestSendButtonTemplate(t *testing.T) {
	calls, srv := newGraphStub(t)
	defer srv.Close()

	c := New("facebook", nil, "tok")
	c.apiBase = srv.URL

	reply := bus.Reply{
		Text: "Reserva aquí",
		Buttons: []bus.Button{
			{Label: "Reservar", URL: "https://example.com/1"},
			{Label: "Menú", URL: "https://example.com/2"},
			{Label: "Web", URL: "https://example.com/3"},
			{Label: "Extra", URL: "https://example.com/4"},
		},
	}
	if err := c.Send(t.Context(), "psid-1", reply); err != nil {
		t.Fatal(err)
	}

	msg := (*calls)[0].body["message"].(map[string]any)
	payload := msg["attachment"].(map[string]any)["payload"].(map[string]any)
	if payload["template_type"] != "button" || payload["text"] != "Reserva aquí" {
		t.Errorf("payload = %v", payload)
	}
	buttons := payload["buttons"].([]any)
	if len(buttons) != 3 {
		t.Errorf("buttons = %d, want capped at 3", len(buttons))
	}
	first := buttons[0].(map[string]any)
	if first["type"] != "web_url" || first["title"] != "Reservar" {
		t.Errorf("button = %v", first)
	}
}

func TestSendPhotos(t *testing.T) {
	calls, srv := newGraphStub(t)
	defer srv.Close()

	c := New("facebook", nil, "tok")
	c.apiBase = srv.URL

	reply := bus.Reply{
		Text:   "Aquí está el menú",
		Photos: []bus.Photo{{Name: "menu", URL: "https://cdn.example.com/menu.jpg"}},
	}
	if err := c.Send(t.Context(), "psid-1", reply); err != nil {
		t.Fatal(err)
	}

	if len(*calls) != 2 {
		t.Fatalf("calls = %d, want text then photo", len(*calls))
	}
	msg := (*calls)[1].body["message"].(map[string]any)
	payload := msg["attachment"].(map[string]any)["payload"].(map[string]any)
	if payload["url"] != "https://cdn.example.com/menu.jpg" {
		t.Errorf("photo payload = %v", payload)
	}
}

func TestSendErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("facebook", nil, "bad")
	c.apiBase = srv.URL

	err := c.Send(t.Context(), "psid-1", bus.Reply{Text: "hola"})
	if err == nil {
		t.Fatal("want error on 401")
	}
}
