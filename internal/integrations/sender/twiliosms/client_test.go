package twiliosms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/stretchr/testify/require"
)

func TestClient_Send_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC123", user)
		require.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "+15005550006", r.PostForm.Get("From"))
		require.Equal(t, "+2348012345678", r.PostForm.Get("To"))
		require.Contains(t, r.PostForm.Get("Body"), "TRK1")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "AC123", "secret", "+15005550006", time.Second)
	err := c.Send(context.Background(), sender.Message{Channel: "sms", To: "+2348012345678", Text: "Update: TRK1 Picked up"})
	require.NoError(t, err)
}

func TestClient_Send_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "AC123", "secret", "+15005550006", time.Second).
		Send(context.Background(), sender.Message{To: "+1"})
	require.Error(t, err)
	require.True(t, sender.IsPermanent(err))
	require.Contains(t, err.Error(), "21211")
}

func TestClient_Send_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL, "AC123", "secret", "+15005550006", time.Second).
		Send(context.Background(), sender.Message{To: "+2348012345678"})
	require.Error(t, err)
	require.False(t, sender.IsPermanent(err))
}

func TestClient_Send_TruncatesLongBody(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotLen = len([]rune(r.PostForm.Get("Body")))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New(srv.URL, "AC123", "secret", "+15005550006", time.Second).
		Send(context.Background(), sender.Message{To: "+2348012345678", Text: strings.Repeat("я", 2000)})
	require.NoError(t, err)
	require.Equal(t, maxBodyLen, gotLen)
}
