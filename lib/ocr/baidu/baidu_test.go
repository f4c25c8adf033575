package baidu

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sankforever/gkcx/lib/ocr"

	"github.com/stretchr/testify/require"
)

type fakeBaidu struct {
	mutex        sync.Mutex
	tokenCalls   int
	ocrCalls     int
	lastImage    string
	lastToken    string
	recognizeRes string
}

func (f *fakeBaidu) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/2.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.tokenCalls++

		q := r.URL.Query()
		if q.Get("client_id") != "ak" || q.Get("client_secret") != "sk" {
			w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
			return
		}
		w.Write([]byte(`{"access_token":"token-1","expires_in":2592000}`))
	})
	mux.HandleFunc(EndpointAccurate, func(w http.ResponseWriter, r *http.Request) {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.ocrCalls++

		r.ParseForm()
		f.lastToken = r.URL.Query().Get("access_token")
		f.lastImage = r.PostForm.Get("image")
		w.Write([]byte(f.recognizeRes))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseUrl, apiKey string) *Client {
	client, err := NewClient(Options{
		ApiKey:    apiKey,
		SecretKey: "sk",
		BaseUrl:   baseUrl,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestRecognize(t *testing.T) {
	fake := &fakeBaidu{
		recognizeRes: `{"log_id":1,"words_result_num":2,"words_result":[{"words":" aB3x "},{"words":"zz"}]}`,
	}
	server := fake.server(t)
	client := newTestClient(t, server.URL, "ak")

	image := []byte{1, 2, 3, 4}
	words, err := client.Recognize(context.Background(), image)
	require.NoError(t, err)
	require.Equal(t, []string{" aB3x ", "zz"}, words)
	require.Equal(t, base64.StdEncoding.EncodeToString(image), fake.lastImage)
	require.Equal(t, "token-1", fake.lastToken)

	// the token is cached between calls
	_, err = client.Recognize(context.Background(), image)
	require.NoError(t, err)
	require.Equal(t, 1, fake.tokenCalls)
	require.Equal(t, 2, fake.ocrCalls)
}

func TestRecognizeEmpty(t *testing.T) {
	fake := &fakeBaidu{recognizeRes: `{"log_id":1,"words_result_num":0,"words_result":[]}`}
	server := fake.server(t)
	client := newTestClient(t, server.URL, "ak")

	_, err := client.Recognize(context.Background(), []byte{1})
	require.ErrorIs(t, err, ocr.ErrNoResult)
}

func TestRecognizeApiError(t *testing.T) {
	fake := &fakeBaidu{recognizeRes: `{"error_code":110,"error_msg":"Access token invalid or no longer valid"}`}
	server := fake.server(t)
	client := newTestClient(t, server.URL, "ak")

	_, err := client.Recognize(context.Background(), []byte{1})
	require.ErrorContains(t, err, "Access token invalid")

	// an invalid token is dropped and fetched again on the next call
	_, err = client.Recognize(context.Background(), []byte{1})
	require.Error(t, err)
	require.Equal(t, 2, fake.tokenCalls)
}

func TestRecognizeBadCredentials(t *testing.T) {
	fake := &fakeBaidu{}
	server := fake.server(t)
	client := newTestClient(t, server.URL, "wrong")

	_, err := client.Recognize(context.Background(), []byte{1})
	require.ErrorContains(t, err, "invalid_client")
	require.Zero(t, fake.ocrCalls)
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient(Options{ApiKey: "ak"})
	require.Error(t, err)
}
