package segment

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, EndpointSegmentImage, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var history []Message
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("chat_history")), &history))
		assert.Equal(t, []Message{{Role: RoleUser, Content: "Hello"}}, history)

		var classes classesPayload
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("classes_json")), &classes))
		assert.Equal(t, []string{"cat"}, classes.Classes)

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "base.png", header.Filename)
		assert.Equal(t, []byte("base-image"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chatResponse":"Hi!","maskedImagePath":"m1.png"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second)
	assert.Equal(t, server.URL, client.Endpoint())

	resp, err := client.Segment(context.Background(), &Request{
		History:   []Message{{Role: RoleUser, Content: "Hello"}},
		Image:     []byte("base-image"),
		ImageName: "base.png",
		Classes:   []string{"cat"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.ChatResponse)
	assert.Equal(t, "m1.png", resp.MaskedImagePath)
}

func TestSegmentRejectsEmptyHistory(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	_, err := client.Segment(context.Background(), &Request{})
	require.Error(t, err)
}

func TestSegmentServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid JSON payload"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Segment(context.Background(), &Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "Invalid JSON payload")
	assert.False(t, IsTransportError(err))
}

func TestSegmentMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Segment(context.Background(), &Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrRequestFailed)
}

func TestSegmentNotRunning(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client := NewClient("http://"+addr, time.Second)
	_, err = client.Segment(context.Background(), &Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrNotRunning)
	assert.True(t, IsTransportError(err))
}

func TestSegmentTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, 50*time.Millisecond)
	_, err := client.Segment(context.Background(), &Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrConnectionTimeout)
}

func TestSegmentCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Segment(ctx, &Request{History: []Message{{Role: RoleUser, Content: "x"}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointImage, r.URL.Path)
		switch r.URL.Query().Get("path") {
		case "outputs/m1 mask.png":
			_, _ = w.Write([]byte("mask-bytes"))
		default:
			http.Error(w, `{"detail":"Image not found"}`, http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	data, err := client.FetchImage(context.Background(), "outputs/m1 mask.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("mask-bytes"), data)

	_, err = client.FetchImage(context.Background(), "missing.png")
	require.ErrorIs(t, err, ErrImageNotFound)

	_, err = client.FetchImage(context.Background(), "")
	require.ErrorIs(t, err, ErrImageNotFound)
}

func TestListImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointImagesList, r.URL.Path)
		_, _ = w.Write([]byte(`["src/images/a.jpg","src/images/b.png"]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	paths, err := client.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/images/a.jpg", "src/images/b.png"}, paths)
}
