package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delegated-groups/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient points both systems at srv with rate limiting effectively
// disabled so tests run fast.
func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		Jira:              SystemConfig{BaseURL: srv.URL + "/rest/", Token: "jira-token"},
		Confluence:        SystemConfig{BaseURL: srv.URL + "/rest/", Token: "conf-token"},
		RequestTimeout:    5 * time.Second,
		MaxPages:          10,
		RequestsPerSecond: 1000,
		EmailMapTTL:       time.Minute,
	}, testLogger())
}

func TestListJiraMembersPaginates(t *testing.T) {
	var authSeen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/group/member", r.URL.Path)
		require.Equal(t, "site-admins", r.URL.Query().Get("groupname"))
		authSeen.Store(r.Header.Get("Authorization"))

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		type user struct {
			Name         string `json:"name"`
			EmailAddress string `json:"emailAddress"`
		}
		resp := struct {
			Values []user `json:"values"`
			IsLast bool   `json:"isLast"`
		}{}
		switch startAt {
		case 0:
			for i := 0; i < 50; i++ {
				resp.Values = append(resp.Values, user{
					Name:         fmt.Sprintf("user%02d", i),
					EmailAddress: fmt.Sprintf("user%02d@example.com", i),
				})
			}
		case 50:
			resp.Values = []user{{Name: "last-user", EmailAddress: "last@example.com"}}
			resp.IsLast = true
		default:
			t.Errorf("unexpected startAt %d", startAt)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	members, err := newTestClient(srv).ListGroupMembers(context.Background(), domain.SystemJira, "site-admins")
	require.NoError(t, err)
	require.Len(t, members, 51)
	assert.Equal(t, "user00", members[0].Username)
	assert.Equal(t, "last-user", members[50].Username)
	assert.Equal(t, "last@example.com", members[50].Email)
	assert.Equal(t, "Bearer jira-token", authSeen.Load())
}

func TestListJiraMembersPageCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Never sets isLast: the client must bail at MaxPages.
		resp := struct {
			Values []struct {
				Name string `json:"name"`
			} `json:"values"`
			IsLast bool `json:"isLast"`
		}{}
		resp.Values = make([]struct {
			Name string `json:"name"`
		}, 1)
		resp.Values[0].Name = "looper"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListGroupMembers(context.Background(), domain.SystemJira, "endless")
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestListConfluenceMembersWithEmailMap(t *testing.T) {
	var emailCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/group/wiki-admins/member":
			// One short page ends the listing.
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]string{
					{"username": "Anna"},
					{"username": "ben"},
				},
			})
		case "/rest/scriptrunner/latest/custom/getAllEmails":
			emailCalls.Add(1)
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"lower_username": "anna", "email": "anna@example.com"},
				{"lower_username": "someone-else", "email": "other@example.com"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	members, err := client.ListGroupMembers(context.Background(), domain.SystemConfluence, "wiki-admins")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, domain.Member{Username: "Anna", Email: "anna@example.com"}, members[0])
	// A username missing from the map degrades to username-only.
	assert.Equal(t, domain.Member{Username: "ben", Email: ""}, members[1])

	// The email map is reused within its TTL.
	_, err = client.ListGroupMembers(context.Background(), domain.SystemConfluence, "wiki-admins")
	require.NoError(t, err)
	assert.Equal(t, int32(1), emailCalls.Load())
}

func TestListConfluenceMembersEmailMapFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/group/wiki-admins/member":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]string{{"username": "carla"}},
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	members, err := newTestClient(srv).ListGroupMembers(context.Background(), domain.SystemConfluence, "wiki-admins")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "carla", members[0].Username)
	assert.Empty(t, members[0].Email)
}

func TestListGroupMembersUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListGroupMembers(context.Background(), domain.SystemJira, "any")
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "502")
}

func TestListGroupNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/scriptrunner/latest/custom/getAllGroups", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]string{"group-a", "group-b"})
	}))
	defer srv.Close()

	names, err := newTestClient(srv).ListGroupNames(context.Background(), domain.SystemConfluence)
	require.NoError(t, err)
	assert.Equal(t, []string{"group-a", "group-b"}, names)
}

func TestUnconfiguredSystemIsRejected(t *testing.T) {
	client := NewClient(Config{
		Jira: SystemConfig{BaseURL: "https://jira.example.com/rest/", Token: "t"},
		// Confluence deliberately unconfigured.
	}, testLogger())

	_, err := client.ListGroupMembers(context.Background(), domain.SystemConfluence, "any")
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "not configured")
}
