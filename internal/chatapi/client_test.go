package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/parley/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct{ token, userID string }

func (s staticCreds) Credentials() (string, string) { return s.token, s.userID }

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Service: "puma", Timeout: 5 * time.Second},
		staticCreds{token: "tok", userID: "u-1"}, logging.New(nil, "silent"))
}

func TestSend(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "u-1", r.Header.Get("userid"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "parley/"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s-1", body.SessionID)
		assert.Equal(t, "hi", body.Message)

		w.Write([]byte(`{"session_id":"s-1","message":"Hello!","agent":"greeter","intent":"greet",
			"tool_calls":[{"name":"lookup","args":{"q":"x"},"result":3}]}`))
	})

	res, err := c.Send(context.Background(), "s-1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Message)
	assert.Equal(t, "greeter", res.Agent)
	assert.Equal(t, "greet", res.Intent)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "lookup", res.ToolCalls[0].Name)
	assert.Equal(t, "x", res.ToolCalls[0].Args["q"])
}

func TestSend_Unauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Send(context.Background(), "s-1", "hi")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSend_APIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Send(context.Background(), "s-1", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "overloaded", apiErr.Body)
}

func TestSend_BadJSON(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := c.Send(context.Background(), "s-1", "hi")
	assert.ErrorContains(t, err, "failed to parse response")
}

func TestSend_ContextCancelled(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "s-1", "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResponseSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"history":[{"id":"` + strings.Repeat("x", 200) + `"}]}`))
	}))
	defer srv.Close()

	small := New(Config{BaseURL: srv.URL, MaxResponseBytes: 64}, staticCreds{}, logging.New(nil, "silent"))
	_, err := small.FetchHistory(context.Background())
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	_, err = small.Login(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	roomy := New(Config{BaseURL: srv.URL}, staticCreds{}, logging.New(nil, "silent"))
	records, err := roomy.FetchHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchHistory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/history", r.URL.Path)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(`{"history":[{"session_id":"a","chats":[]},{"id":"b","messages":[]}],"user_id":"u-1"}`))
	})

	records, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"session_id":"a","chats":[]}`, string(records[0]))
}

func TestFetchHistory_Empty(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"user_id":"u-1"}`))
	})

	records, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNoCredentialHeadersWhenSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("userid"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, staticCreds{}, logging.New(nil, "silent"))
	_, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "login is sent without credentials")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user:login", body["resource"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "a@b.co", data["email"])
		assert.Equal(t, "pw", data["password"])
		assert.Equal(t, true, data["remember_me"])
		assert.Equal(t, "puma", body["metadata"].(map[string]any)["service"])

		w.Write([]byte(`{"result":{"auth_token":"tok-9","user":{"_id":"u-9"}}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: "http://unused", AuthURL: srv.URL, Service: "puma"},
		staticCreds{token: "old"}, logging.New(nil, "silent"))

	sess, err := c.Login(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-9", sess.Token)
	assert.Equal(t, "u-9", sess.UserID)
}

func TestLogin_Rejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"msg":"invalid credentials"}}`))
	})

	_, err := c.Login(context.Background(), "a@b.co", "bad")
	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "invalid credentials", loginErr.Message)
	assert.Equal(t, "login failed: invalid credentials", err.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result":{"auth_token":""}}`))
	})

	_, err := c.Login(context.Background(), "a@b.co", "pw")
	assert.ErrorContains(t, err, "missing token")
}

func TestLogin_ServerErrorPage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "<html>bad gateway</html>", http.StatusBadGateway)
	})

	_, err := c.Login(context.Background(), "a@b.co", "pw")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestReportURL(t *testing.T) {
	c := New(Config{BaseURL: "https://api.example.com/"}, nil, logging.New(nil, "silent"))

	u, err := c.ReportURL("s 1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/report/s%201?format=pdf", u)

	_, err = c.ReportURL("s1", "docx")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, "report-s1.pdf", ReportFilename("s1", FormatPDF))
	assert.Equal(t, "report-s1.xlsx", ReportFilename("s1", FormatXLSX))
}

func TestDownloadReport(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/report/s-1", r.URL.Path)
		assert.Equal(t, "xlsx", r.URL.Query().Get("format"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte("PK-binary"))
	})

	var buf bytes.Buffer
	n, err := c.DownloadReport(context.Background(), "s-1", FormatXLSX, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "PK-binary", buf.String())
}

func TestDownloadReport_Errors(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	var buf bytes.Buffer
	_, err := c.DownloadReport(context.Background(), "s-1", FormatPDF, &buf)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.DownloadReport(context.Background(), "s-1", "csv", &buf)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://api.example.com/x", redact("https://user:pw@api.example.com/x"))
}
