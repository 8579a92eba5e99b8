package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataguardian/app"
	"github.com/upb/dataguardian/config"
	"github.com/upb/dataguardian/internal/auth"
	"go.uber.org/zap"
)

const meterCSV = "name,email,city,kwh\n" +
	"Ana,ana@x.org,Cali,12.5\n" +
	"Luis,luis@x.org,Bogota,9\n" +
	"Eva,eva@x.org,Cali,3\n"

type apiClient struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[auth.Role]string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			ShutdownTimeout: time.Second,
			RequestTimeout:  10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:*"},
		},
		Store:   config.StoreConfig{Driver: config.StoreDriverMemory, OpTimeout: time.Second},
		Blob:    config.BlobConfig{Backend: config.BlobBackendMemory},
		Audit:   config.AuditConfig{Capacity: 500, Sink: config.AuditSinkMemory},
		Auth:    config.AuthConfig{Enabled: true, JWTSecret: "routes-secret", Issuer: "dataguardian"},
		Privacy: config.DefaultPrivacyPolicy(),
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	srv := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(srv.Close)

	c := &apiClient{t: t, srv: srv, tokens: map[auth.Role]string{}}
	for _, role := range []auth.Role{auth.RoleCitizen, auth.RoleApp, auth.RoleAdmin} {
		tok, err := deps.Issuer.Mint("test-"+string(role), role, time.Hour)
		require.NoError(t, err)
		c.tokens[role] = tok
	}
	return c
}

// do sends a request as role ("" for no actor token) and returns status and body
func (c *apiClient) do(role auth.Role, method, path, contentType string, body io.Reader) (int, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+c.tokens[role])
	}
	return c.send(req)
}

func (c *apiClient) send(req *http.Request) (int, []byte) {
	c.t.Helper()
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, data
}

func (c *apiClient) json(role auth.Role, method, path string, in any) (int, map[string]any) {
	c.t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(c.t, err)
		body = bytes.NewReader(b)
	}
	status, raw := c.do(role, method, path, "application/json", body)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return status, out
}

func (c *apiClient) data(secret, query string) (int, http.Header, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/data"+query, nil)
	require.NoError(c.t, err)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, resp.Header, b
}

func dataOf(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	d, ok := m["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", m)
	return d
}

// setup uploads the meter dataset and returns the ids of a dataset, a rule and an active stream
func (c *apiClient) setup() (datasetID, ruleID, streamID string) {
	t := c.t
	t.Helper()

	status, raw := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets?name=meters", "text/csv", strings.NewReader(meterCSV))
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created map[string]any
	require.NoError(t, json.Unmarshal(raw, &created))
	datasetID = dataOf(t, created)["id"].(string)

	status, rule := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":        "consumption by city",
		"dataset_id":  datasetID,
		"fields":      []string{"city", "kwh"},
		"filters":     []map[string]any{{"field": "kwh", "op": "gte", "value": 5}},
		"ttl_minutes": 60,
	})
	require.Equal(t, http.StatusCreated, status, rule)
	ruleID = dataOf(t, rule)["id"].(string)

	status, stream := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/streams", map[string]any{"rule_id": ruleID})
	require.Equal(t, http.StatusCreated, status, stream)
	streamID = dataOf(t, stream)["id"].(string)
	return datasetID, ruleID, streamID
}

func (c *apiClient) issue(streamID string, in map[string]any) (id, secret string) {
	c.t.Helper()
	status, tok := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/streams/"+streamID+"/tokens", in)
	require.Equal(c.t, http.StatusCreated, status, tok)
	d := dataOf(c.t, tok)
	return d["id"].(string), d["token"].(string)
}

func TestHealth(t *testing.T) {
	c := newAPI(t)

	status, _ := c.do("", http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := c.do("", http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"rule_cache"`)

	status, body = c.do("", http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "endpoint not found")
}

func TestAuthorization(t *testing.T) {
	c := newAPI(t)

	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		want   int
	}{
		{"no actor token", "", http.MethodGet, "/api/v1/datasets", http.StatusUnauthorized},
		{"citizen lists datasets", auth.RoleCitizen, http.MethodGet, "/api/v1/datasets", http.StatusOK},
		{"app cannot list datasets", auth.RoleApp, http.MethodGet, "/api/v1/datasets", http.StatusForbidden},
		{"admin lists datasets", auth.RoleAdmin, http.MethodGet, "/api/v1/datasets", http.StatusOK},
		{"citizen cannot run cleanup", auth.RoleCitizen, http.MethodPost, "/api/v1/admin/cleanup", http.StatusForbidden},
		{"admin runs cleanup", auth.RoleAdmin, http.MethodPost, "/api/v1/admin/cleanup", http.StatusOK},
		{"malformed id", auth.RoleCitizen, http.MethodGet, "/api/v1/streams/not-a-uuid", http.StatusBadRequest},
		{"unknown stream", auth.RoleCitizen, http.MethodGet, "/api/v1/streams/" + "8f14e45f-ceea-467f-a0e6-8b4a3e3c1a11", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := c.do(tt.role, tt.method, tt.path, "", nil)
			assert.Equal(t, tt.want, status, string(body))
		})
	}

	t.Run("forged actor token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/api/v1/datasets", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+c.tokens[auth.RoleCitizen]+"x")
		status, _ := c.send(req)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestDatasets(t *testing.T) {
	c := newAPI(t)

	t.Run("multipart upload infers schema", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "steps.csv")
		require.NoError(t, err)
		_, err = io.WriteString(fw, "user,steps\nana,100\nluis,250\n")
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		status, raw := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets", mw.FormDataContentType(), &buf)
		require.Equal(t, http.StatusCreated, status, string(raw))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(raw, &resp))
		d := dataOf(t, resp)
		assert.Equal(t, "steps", d["name"])
		assert.EqualValues(t, 2, d["row_count"])
	})

	t.Run("duplicate content conflicts", func(t *testing.T) {
		status, _ := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets?name=a", "text/csv", strings.NewReader(meterCSV))
		require.Equal(t, http.StatusCreated, status)

		status, raw := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets?name=b", "text/csv", strings.NewReader(meterCSV))
		assert.Equal(t, http.StatusConflict, status)
		assert.Contains(t, string(raw), "existing_id")
	})

	t.Run("malformed csv", func(t *testing.T) {
		status, _ := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets?name=bad", "text/csv", strings.NewReader("a,b\n1,2,3\n"))
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unsupported media type", func(t *testing.T) {
		status, _ := c.do(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets", "application/xml", strings.NewReader("<a/>"))
		assert.Equal(t, http.StatusUnsupportedMediaType, status)
	})

	t.Run("sample is idempotent", func(t *testing.T) {
		status, first := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets/sample", nil)
		require.Equal(t, http.StatusOK, status)
		status, second := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/datasets/sample", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, dataOf(t, first)["id"], dataOf(t, second)["id"])
	})
}

func TestRules(t *testing.T) {
	c := newAPI(t)
	datasetID, ruleID, _ := c.setup()

	t.Run("invalid rule is unprocessable", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/rules", map[string]any{
			"name":        "bad",
			"dataset_id":  datasetID,
			"fields":      []string{"missing"},
			"ttl_minutes": 10,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, status, resp)
	})

	t.Run("missing name fails request validation", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/rules", map[string]any{"dataset_id": datasetID})
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "name is required", resp["details"].(map[string]any)["name"])
	})

	t.Run("dry run reports errors without persisting", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/rules/validate", map[string]any{
			"name":        "dry-run",
			"dataset_id":  datasetID,
			"fields":      []string{"missing"},
			"ttl_minutes": 10,
		})
		require.Equal(t, http.StatusOK, status)
		d := dataOf(t, resp)
		assert.Equal(t, false, d["valid"])
		assert.NotEmpty(t, d["errors"])

		status, list := c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/rules?dataset_id="+datasetID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, list["data"], 1)
	})

	t.Run("update and get", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodPut, "/api/v1/rules/"+ruleID, map[string]any{
			"name":        "renamed",
			"dataset_id":  datasetID,
			"fields":      []string{"city"},
			"ttl_minutes": 30,
		})
		require.Equal(t, http.StatusOK, status, resp)

		status, got := c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/rules/"+ruleID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "renamed", dataOf(t, got)["name"])
	})
}

func TestStreamLifecycle(t *testing.T) {
	c := newAPI(t)
	_, _, streamID := c.setup()

	t.Run("read returns filtered rows", func(t *testing.T) {
		_, secret := c.issue(streamID, nil)

		status, _, body := c.data(secret, "")
		require.Equal(t, http.StatusOK, status, string(body))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(body, &resp))
		rows := dataOf(t, resp)["data"].(map[string]any)["rows"].([]any)
		assert.Len(t, rows, 2)
	})

	t.Run("missing or unknown token", func(t *testing.T) {
		status, _, _ := c.data("", "")
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _, _ = c.data("dg_unknown", "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("csv export needs export scope", func(t *testing.T) {
		_, readOnly := c.issue(streamID, nil)
		status, _, _ := c.data(readOnly, "?format=csv")
		assert.Equal(t, http.StatusForbidden, status)

		_, exporter := c.issue(streamID, map[string]any{"scope": []string{"read", "export"}})
		status, header, body := c.data(exporter, "?format=csv")
		require.Equal(t, http.StatusOK, status, string(body))
		assert.Equal(t, fmt.Sprintf("attachment; filename=%q", "stream-"+streamID+".csv"), header.Get("Content-Disposition"))
		assert.Equal(t, "city,kwh\nCali,12.5\nBogota,9\n", string(body))
	})

	t.Run("one-time token is gone after use", func(t *testing.T) {
		_, secret := c.issue(streamID, map[string]any{"one_time": true})

		status, _, _ := c.data(secret, "")
		require.Equal(t, http.StatusOK, status)
		status, _, _ = c.data(secret, "")
		assert.Equal(t, http.StatusGone, status)
	})

	t.Run("token list never shows secrets", func(t *testing.T) {
		status, raw := c.do(auth.RoleCitizen, http.MethodGet, "/api/v1/streams/"+streamID+"/tokens", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.NotContains(t, string(raw), `"token"`)
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		id, secret := c.issue(streamID, nil)
		status, _ := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/tokens/"+id+"/revoke", nil)
		require.Equal(t, http.StatusOK, status)

		status, _, _ = c.data(secret, "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("preview does not need a token", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/streams/"+streamID+"/preview", nil)
		require.Equal(t, http.StatusOK, status)
		assert.NotNil(t, dataOf(t, resp)["data"])
	})

	t.Run("receipt as json and html", func(t *testing.T) {
		status, resp := c.json(auth.RoleApp, http.MethodGet, "/api/v1/streams/"+streamID+"/receipt", nil)
		require.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, dataOf(t, resp)["events"])

		status, raw := c.do(auth.RoleCitizen, http.MethodGet, "/api/v1/streams/"+streamID+"/receipt?format=html", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(raw), "<html")

		status, _ = c.do(auth.RoleCitizen, http.MethodGet, "/api/v1/streams/"+streamID+"/receipt?format=docx", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("receipt as pdf", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/api/v1/streams/"+streamID+"/receipt", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+c.tokens[auth.RoleCitizen])
		req.Header.Set("Accept", "application/pdf")

		resp, err := c.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "receipt-"+streamID+".pdf")
		assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))
	})

	t.Run("revoking the stream ends access", func(t *testing.T) {
		_, secret := c.issue(streamID, nil)

		status, resp := c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/streams/"+streamID+"/revoke", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "revoked", dataOf(t, resp)["status"])

		status, _, _ = c.data(secret, "")
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = c.json(auth.RoleCitizen, http.MethodPost, "/api/v1/streams/"+streamID+"/tokens", nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("audit trail", func(t *testing.T) {
		status, resp := c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/audit?limit=1", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, resp["data"], 1)

		status, resp = c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/audit?resource_id="+streamID, nil)
		require.Equal(t, http.StatusOK, status)
		types := map[string]bool{}
		for _, e := range resp["data"].([]any) {
			types[e.(map[string]any)["type"].(string)] = true
		}
		assert.True(t, types["stream_created"])
		assert.True(t, types["stream_revoked"])
		assert.True(t, types["stream_accessed"])

		status, _ = c.json(auth.RoleCitizen, http.MethodGet, "/api/v1/audit?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
