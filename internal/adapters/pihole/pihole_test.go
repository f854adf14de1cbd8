package pihole

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

// fakePihole emulates the parts of the Pi-hole v6 API used by the client.
type fakePihole struct {
	mu sync.Mutex

	password string
	validity int
	csrf     string

	authStatus       int
	downloadStatuses []int
	uploadStatuses   []int
	logoutStatus     int
	downloadDelay    time.Duration

	archive []byte

	fakeStats
}

// fakeStats records what the fake observed; read it through snapshot.
type fakeStats struct {
	authCalls      int
	downloadCalls  int
	uploadCalls    int
	logoutCalls    int
	sessions       int
	downloadSIDs   []string
	downloadCSRFs  []string
	logoutSIDs     []string
	uploaded       []byte
	uploadFilename string
	uploadType     string
	passwords      []string
}

func (f *fakePihole) snapshot() fakeStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fakeStats
}

func newFakePihole() *fakePihole {
	return &fakePihole{
		password: "secret",
		validity: 300,
		csrf:     "csrf-token",
		archive:  []byte("zip-payload"),
	}
}

func (f *fakePihole) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth":
		f.handleAuth(w, r)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/auth":
		f.logoutCalls++
		f.logoutSIDs = append(f.logoutSIDs, r.Header.Get(headerSID))
		if f.logoutStatus != 0 {
			w.WriteHeader(f.logoutStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/api/teleporter":
		f.downloadCalls++
		f.downloadSIDs = append(f.downloadSIDs, r.Header.Get(headerSID))
		f.downloadCSRFs = append(f.downloadCSRFs, r.Header.Get(headerCSRF))
		if f.downloadCalls == 1 && f.downloadDelay > 0 {
			f.mu.Unlock()
			select {
			case <-time.After(f.downloadDelay):
			case <-r.Context().Done():
			}
			f.mu.Lock()
		}
		if status := next(&f.downloadStatuses); status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(f.archive)
	case r.Method == http.MethodPost && r.URL.Path == "/api/teleporter":
		f.uploadCalls++
		if status := next(&f.uploadStatuses); status != 0 {
			w.WriteHeader(status)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		f.uploaded, _ = io.ReadAll(file)
		f.uploadFilename = header.Filename
		f.uploadType = header.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed":["etc/pihole/pihole.toml"],"took":0.1}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePihole) handleAuth(w http.ResponseWriter, r *http.Request) {
	f.authCalls++
	var body struct {
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.passwords = append(f.passwords, body.Password)

	w.Header().Set("Content-Type", "application/json")
	if f.authStatus != 0 {
		w.WriteHeader(f.authStatus)
		_, _ = w.Write([]byte(`{"session":{"valid":false,"totp":false,"sid":null,"csrf":null,"validity":-1,"message":"password incorrect"},"took":0.01}`))
		return
	}
	if body.Password != f.password {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"session":{"valid":false,"totp":false,"sid":null,"csrf":null,"validity":-1,"message":"password incorrect"},"took":0.01}`))
		return
	}
	f.sessions++
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session": map[string]any{
			"valid":    true,
			"totp":     false,
			"sid":      fmt.Sprintf("sid-%d", f.sessions),
			"csrf":     f.csrf,
			"validity": f.validity,
			"message":  "password correct",
		},
		"took": 0.01,
	})
}

func next(statuses *[]int) int {
	if len(*statuses) == 0 {
		return 0
	}
	s := (*statuses)[0]
	*statuses = (*statuses)[1:]
	return s
}

func testNode(t *testing.T, baseURL, password string) teleporter.Node {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse URL %s: %v", baseURL, err)
	}
	return teleporter.Node{Name: "test", BaseURL: u, Password: password, Role: teleporter.RoleSecondary}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	httpClient := &http.Client{Timeout: 2 * time.Second}
	c := NewClient(testNode(t, baseURL, "secret"), NewAuthenticator(httpClient), httpClient)
	c.backoff = time.Millisecond
	return c
}
