package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"racebet/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOpenF1Server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("session_key") {
		case "9158":
			_, _ = w.Write([]byte(`[{"session_key":9158,"session_name":"Race","session_type":"Race",
				"circuit_short_name":"Monza","country_name":"Italy","country_code":"ITA",
				"date_start":"2023-09-03T13:00:00+00:00","date_end":"2023-09-03T15:00:00+00:00","year":2023}]`))
		case "":
			_, _ = w.Write([]byte(`[
				{"session_key":1,"session_name":"Race","session_type":"Race","date_start":"","date_end":"","year":2023},
				{"session_key":2,"session_name":"Race","session_type":"Race","date_end":"not-a-date","year":2023},
				{"session_key":3,"session_name":"Race","session_type":"Race","year":2023}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/drivers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"driver_number":44,"full_name":"Lewis HAMILTON","team_name":"Mercedes","name_acronym":"HAM"},
			{"driver_number":1,"full_name":"Max VERSTAPPEN","team_name":"Red Bull Racing","name_acronym":"VER"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenF1ClientSession(t *testing.T) {
	srv := newOpenF1Server(t)
	c := NewOpenF1Client(srv.URL+"/", time.Second, zap.NewNop())

	s, err := c.Session(context.Background(), 9158, false)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionKey(9158), s.Key)
	assert.Equal(t, "Monza", s.CircuitShortName)
	require.NotNil(t, s.End)
	assert.True(t, s.End.Equal(time.Date(2023, 9, 3, 15, 0, 0, 0, time.UTC)))
	assert.True(t, s.HasDriver(44))
	assert.False(t, s.HasDriver(16))
	assert.True(t, s.EndedBy(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, s.EndedBy(time.Date(2023, 9, 3, 14, 0, 0, 0, time.UTC)))
}

func TestOpenF1ClientSessionNotFound(t *testing.T) {
	srv := newOpenF1Server(t)
	c := NewOpenF1Client(srv.URL, time.Second, zap.NewNop())

	_, err := c.Session(context.Background(), 1234, false)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestOpenF1ClientSessionsLimitAndBadDates(t *testing.T) {
	srv := newOpenF1Server(t)
	c := NewOpenF1Client(srv.URL, time.Second, zap.NewNop(), WithMaxSessions(2))

	sessions, err := c.Sessions(context.Background(), Query{SessionType: "Race"}, false)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.SessionKey(2), sessions[0].Key)
	assert.Equal(t, domain.SessionKey(3), sessions[1].Key)
	assert.Nil(t, sessions[0].End)
	assert.Len(t, sessions[1].Drivers, 2)
}

func TestOpenF1ClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenF1Client(srv.URL, time.Second, zap.NewNop())
	_, err := c.Session(context.Background(), 9158, false)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.True(t, statusErr.Retryable())
}
