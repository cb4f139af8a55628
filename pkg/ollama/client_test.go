package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}

func TestAnalyzeFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte("Ollama is running"))
		case "/api/chat":
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			assert.Equal(t, "json", req["format"])
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model": "llava",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"faces":[{"x":0.4,"y":0.2,"w":0.2,"h":0.3,"confidence":0.9}]}`,
				},
				"done": true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	res, err := c.AnalyzeFaces(context.Background(), "llava", "find faces", base64.StdEncoding.EncodeToString([]byte("img")))
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.Equal(t, 0.4, res.Faces[0].X)
}

func TestAnalyzeFacesBadImage(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.AnalyzeFaces(context.Background(), "llava", "find faces", "%%%")
	assert.Error(t, err)
}
