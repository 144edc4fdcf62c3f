package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/core"
)

var _ core.MediaStore = (*Store)(nil)

type fakeAPI struct {
	mu   sync.Mutex
	puts []*s3.PutObjectInput
	body []string
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	f.body = append(f.body, string(data))
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	key     string
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.key = aws.ToString(in.Key)
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + f.key}, nil
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStore_Persist(t *testing.T) {
	srv := mediaServer(t)
	api := &fakeAPI{}
	store := New(api, "evidence", func(o *Options) {
		o.Prefix = "intake"
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
		o.SourceHosts = []string{"127.0.0.1"}
	})

	ref, err := store.Persist(context.Background(), "whatsapp:+919876543210", core.Attachment{Ref: srv.URL + "/m/1"})
	require.NoError(t, err)

	require.Len(t, api.puts, 1)
	put := api.puts[0]
	key := aws.ToString(put.Key)
	assert.True(t, strings.HasPrefix(key, "intake/media/919876543210/"), key)
	assert.Equal(t, "evidence", aws.ToString(put.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(put.ContentType))
	assert.Equal(t, srv.URL+"/m/1", put.Metadata["source_ref"])
	assert.Equal(t, "jpeg-bytes", api.body[0])
	assert.Equal(t, "s3://evidence/"+key, ref)
}

func TestStore_PersistPublicURL(t *testing.T) {
	srv := mediaServer(t)
	store := New(&fakeAPI{}, "evidence", func(o *Options) {
		o.PublicBaseURL = "https://cdn.example/"
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
		o.SourceHosts = []string{"127.0.0.1"}
	})

	ref, err := store.Persist(context.Background(), "+1", core.Attachment{Ref: srv.URL + "/m/2", ContentType: "application/pdf"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "https://cdn.example/media/1/"), ref)
}

func TestStore_PersistDownloadFailure(t *testing.T) {
	srv := mediaServer(t)
	api := &fakeAPI{}
	store := New(api, "evidence", func(o *Options) {
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
		o.SourceHosts = []string{"127.0.0.1"}
	})

	_, err := store.Persist(context.Background(), "+1", core.Attachment{Ref: srv.URL + "/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Empty(t, api.puts)

	small := New(api, "evidence", func(o *Options) {
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
		o.SourceHosts = []string{"127.0.0.1"}
		o.MaxBytes = 4
	})
	_, err = small.Persist(context.Background(), "+1", core.Attachment{Ref: srv.URL + "/m/3"})
	require.Error(t, err)
	assert.Empty(t, api.puts)
}

func TestStore_PresignGet(t *testing.T) {
	p := &fakePresigner{}
	store := New(&fakeAPI{}, "evidence", func(o *Options) { o.Presigner = p })

	url, err := store.PresignGet(context.Background(), "s3://evidence/media/1/a.jpg", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/media/1/a.jpg", url)
	assert.Equal(t, "media/1/a.jpg", p.key)
	assert.Equal(t, 10*time.Minute, p.expires)

	_, err = store.PresignGet(context.Background(), "s3://other/x", time.Minute)
	assert.Error(t, err)
}

func TestStore_CredentialsStayOnSourceHosts(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  int
		auths []string
	)
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen++
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("stolen"))
	}))
	t.Cleanup(foreign.Close)

	trusted := mediaServer(t)
	u, err := url.Parse(trusted.URL)
	require.NoError(t, err)
	trustedRef := "http://localhost:" + u.Port() + "/m/1"

	api := &fakeAPI{}
	store := New(api, "evidence", func(o *Options) {
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
		o.SourceHosts = []string{"localhost"}
	})

	_, err = store.Persist(context.Background(), "+1", core.Attachment{Ref: trustedRef})
	require.NoError(t, err)

	_, err = store.Persist(context.Background(), "+1", core.Attachment{Ref: foreign.URL + "/m/1"})
	require.ErrorIs(t, err, ErrUntrustedSource)

	_, err = store.Persist(context.Background(), "+1", core.Attachment{Ref: "file:///etc/passwd"})
	require.ErrorIs(t, err, ErrUntrustedSource)

	open := New(api, "evidence", func(o *Options) {
		o.SourceUser = "AC123"
		o.SourcePassword = "secret"
	})
	_, err = open.Persist(context.Background(), "+1", core.Attachment{Ref: foreign.URL + "/m/2"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen)
	assert.Equal(t, []string{""}, auths)
	assert.Len(t, api.puts, 2)
}
