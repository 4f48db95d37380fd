package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chainqa-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerPayloadEncoding(t *testing.T) {
	data, err := canonicalJSON(NewAnswerPayload(7, "Try restarting the service", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"questionId":7,"bodyMd":"Try restarting the service","files":[]}`, string(data))
	assert.Equal(t, `{"questionId":7,"bodyMd":"Try restarting the service","files":[]}`, string(data))
}

func TestObjectCIDDeterministic(t *testing.T) {
	a, err := ObjectCID(NewAnswerPayload(7, "body", []string{"ipfs://f1"}))
	require.NoError(t, err)
	b, err := ObjectCID(NewAnswerPayload(7, "body", []string{"ipfs://f1"}))
	require.NoError(t, err)
	c, err := ObjectCID(NewAnswerPayload(7, "body!", []string{"ipfs://f1"}))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "b3-"))
	assert.Len(t, a, 3+64)
}

func TestPinataClient_PinJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer secret-jwt", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"cid123","PinSize":64,"Timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewPinataClient(config.PinataConfig{BaseURL: srv.URL + "/", JWT: "secret-jwt"})
	cid, err := client.PinJSON(context.Background(), "answer-q7", NewAnswerPayload(7, "Try restarting the service", nil))
	require.NoError(t, err)
	assert.Equal(t, "cid123", cid)

	content := got["pinataContent"].(map[string]interface{})
	assert.Equal(t, float64(7), content["questionId"])
	assert.Equal(t, "Try restarting the service", content["bodyMd"])
	assert.Equal(t, []interface{}{}, content["files"])
	assert.Equal(t, "answer-q7", got["pinataMetadata"].(map[string]interface{})["name"])
}

func TestPinataClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad jwt"}`},
		{"missing hash", http.StatusOK, `{}`},
		{"bad json", http.StatusOK, `not-json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewPinataClient(config.PinataConfig{BaseURL: srv.URL})
			_, err := client.PinJSON(context.Background(), "x", NewAnswerPayload(1, "b", nil))
			assert.Error(t, err)
		})
	}
}

type countingPinner struct {
	calls int
	cid   string
	err   error
}

func (p *countingPinner) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	p.calls++
	return p.cid, p.err
}

type memCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	ttl    time.Duration
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	return c.values[key], nil
}

func (c *memCache) Set(ctx context.Context, key, cid string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = cid
	c.ttl = ttl
	return nil
}

func TestCachedPinner_ReusesCID(t *testing.T) {
	next := &countingPinner{cid: "cid123"}
	cache := &memCache{values: map[string]string{}}
	pinner := NewCachedPinner("pinata", next, cache, time.Hour)
	payload := NewAnswerPayload(7, "Try restarting the service", nil)

	for i := 0; i < 3; i++ {
		cid, err := pinner.PinJSON(context.Background(), "a", payload)
		require.NoError(t, err)
		assert.Equal(t, "cid123", cid)
	}
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Hour, cache.ttl)

	_, err := pinner.PinJSON(context.Background(), "a", NewAnswerPayload(7, "another body", nil))
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedPinner_CacheErrorsIgnored(t *testing.T) {
	next := &countingPinner{cid: "cid123"}
	cache := &memCache{values: map[string]string{}, getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	pinner := NewCachedPinner("pinata", next, cache, time.Hour)

	cid, err := pinner.PinJSON(context.Background(), "a", NewAnswerPayload(7, "b", nil))
	require.NoError(t, err)
	assert.Equal(t, "cid123", cid)
	assert.Equal(t, 1, next.calls)
}

func TestCachedPinner_PinFailureNotCached(t *testing.T) {
	next := &countingPinner{err: errors.New("pinata unavailable")}
	cache := &memCache{values: map[string]string{}}
	pinner := NewCachedPinner("pinata", next, cache, time.Hour)

	_, err := pinner.PinJSON(context.Background(), "a", NewAnswerPayload(7, "b", nil))
	assert.Error(t, err)
	assert.Empty(t, cache.values)
}

func TestCachedPinner_KeyScopedByBackend(t *testing.T) {
	cache := &memCache{values: map[string]string{}}
	pinata := &countingPinner{cid: "bafy-pinata"}
	object := &countingPinner{cid: "b3-object"}
	payload := NewAnswerPayload(7, "Try restarting the service", nil)

	cid, err := NewCachedPinner("pinata", pinata, cache, time.Hour).PinJSON(context.Background(), "a", payload)
	require.NoError(t, err)
	assert.Equal(t, "bafy-pinata", cid)

	// 同一份内容换到另一个后端时不能复用前一个后端的 CID
	cid, err = NewCachedPinner("minio", object, cache, time.Hour).PinJSON(context.Background(), "a", payload)
	require.NoError(t, err)
	assert.Equal(t, "b3-object", cid)
	assert.Equal(t, 1, pinata.calls)
	assert.Equal(t, 1, object.calls)

	data, err := canonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, "bafy-pinata", cache.values["pin:pinata:"+digest(data)])
	assert.Equal(t, "b3-object", cache.values["pin:minio:"+digest(data)])
}

// fakeS3 只实现 objectPinner 用到的 HEAD 和 PUT。
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	heads     int
	puts      int
	headError int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		f.heads++
		if f.headError != 0 {
			w.WriteHeader(f.headError)
			return
		}
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		f.puts++
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Pinner(t *testing.T, s3 *fakeS3) Pinner {
	t.Helper()
	srv := httptest.NewServer(s3)
	t.Cleanup(srv.Close)

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return NewObjectPinner(client, "answers")
}

func TestObjectPinner_PinJSON(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}}
	pinner := newFakeS3Pinner(t, s3)
	payload := NewAnswerPayload(7, "Try restarting the service", nil)
	want, err := ObjectCID(payload)
	require.NoError(t, err)

	cid, err := pinner.PinJSON(context.Background(), "answer-7", payload)
	require.NoError(t, err)
	assert.Equal(t, want, cid)
	assert.Equal(t, 1, s3.heads)
	assert.Equal(t, 1, s3.puts)

	assert.Contains(t, s3.objects, "/answers/pins/"+want+".json")

	// 相同内容第二次固定只做 HEAD，不再上传
	again, err := pinner.PinJSON(context.Background(), "answer-7", payload)
	require.NoError(t, err)
	assert.Equal(t, cid, again)
	assert.Equal(t, 2, s3.heads)
	assert.Equal(t, 1, s3.puts)
}

func TestObjectPinner_StatErrorSurfaces(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}, headError: http.StatusForbidden}
	pinner := newFakeS3Pinner(t, s3)

	cid, err := pinner.PinJSON(context.Background(), "answer-7", NewAnswerPayload(7, "b", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat pinned object")
	assert.Empty(t, cid)
	assert.Equal(t, 0, s3.puts)
}
