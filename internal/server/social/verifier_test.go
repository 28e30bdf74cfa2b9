package social

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"github.com/dmitrijs2005/travelplanner/internal/logging"
	"github.com/dmitrijs2005/travelplanner/internal/server/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	srv   *httptest.Server
	calls atomic.Int32
}

// newFakeProvider serves responses[i] for the i-th call, repeating the last.
func newFakeProvider(t *testing.T, responses ...func(w http.ResponseWriter, r *http.Request)) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(fp.calls.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		responses[n](w, r)
	}))
	t.Cleanup(fp.srv.Close)
	return fp
}

func status(code int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func newTestVerifier(e Endpoints, timeout time.Duration) *Verifier {
	return NewVerifier(DefaultProviders(e), timeout, 1, logging.NewNopLogger(), WithBackoff(time.Millisecond))
}

func TestVerify_Google(t *testing.T) {
	var gotAuth string
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		status(200, `{"sub":"g-1","email":"ann@gmail.com","name":"Ann"}`)(w, r)
	})
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	p, err := v.Verify(context.Background(), "google", "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, &Profile{Provider: "google", SubjectID: "g-1", Email: "ann@gmail.com", Name: "Ann"}, p)
}

func TestVerify_GitHubNumericIDAndLoginFallback(t *testing.T) {
	var gotAccept string
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		status(200, `{"id":583231,"login":"octo","name":"","email":null}`)(w, r)
	})
	v := newTestVerifier(Endpoints{GitHub: fp.srv.URL}, time.Second)

	p, err := v.Verify(context.Background(), "GitHub", "tok")
	require.NoError(t, err)

	assert.Equal(t, "application/vnd.github+json", gotAccept)
	assert.Equal(t, "github", p.Provider)
	assert.Equal(t, "583231", p.SubjectID)
	assert.Equal(t, "octo", p.Name)
	assert.Empty(t, p.Email)
}

func TestVerify_Kakao(t *testing.T) {
	fp := newFakeProvider(t, status(200,
		`{"id":12345,"kakao_account":{"email":"k@kakao.com","profile":{"nickname":"kim"}}}`))
	v := newTestVerifier(Endpoints{Kakao: fp.srv.URL}, time.Second)

	p, err := v.Verify(context.Background(), "kakao", "tok")
	require.NoError(t, err)
	assert.Equal(t, &Profile{Provider: "kakao", SubjectID: "12345", Email: "k@kakao.com", Name: "kim"}, p)
}

func TestVerify_Naver(t *testing.T) {
	fp := newFakeProvider(t, status(200,
		`{"resultcode":"00","message":"success","response":{"id":"nv-1","email":"n@naver.com","nickname":"lee"}}`))
	v := newTestVerifier(Endpoints{Naver: fp.srv.URL}, time.Second)

	p, err := v.Verify(context.Background(), "naver", "tok")
	require.NoError(t, err)
	assert.Equal(t, &Profile{Provider: "naver", SubjectID: "nv-1", Email: "n@naver.com", Name: "lee"}, p)
}

func TestVerify_NaverRejectedResultCode(t *testing.T) {
	fp := newFakeProvider(t, status(200, `{"resultcode":"024","message":"Authentication failed"}`))
	v := newTestVerifier(Endpoints{Naver: fp.srv.URL}, time.Second)

	_, err := v.Verify(context.Background(), "naver", "tok")
	require.ErrorIs(t, err, common.ErrInvalidProviderToken)
	assert.EqualValues(t, 1, fp.calls.Load())
}

func TestVerify_RejectedTokenIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden} {
		fp := newFakeProvider(t, status(code, `{}`))
		v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

		_, err := v.Verify(context.Background(), "google", "bad")
		require.ErrorIs(t, err, common.ErrInvalidProviderToken, "status %d", code)
		assert.EqualValues(t, 1, fp.calls.Load(), "status %d", code)
	}
}

func TestVerify_EmptySubjectIsInvalid(t *testing.T) {
	fp := newFakeProvider(t, status(200, `{"email":"x@y.z"}`))
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	_, err := v.Verify(context.Background(), "google", "tok")
	require.ErrorIs(t, err, common.ErrInvalidProviderToken)
}

func TestVerify_GarbageBodyIsInvalid(t *testing.T) {
	fp := newFakeProvider(t, status(200, `<html>`))
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	_, err := v.Verify(context.Background(), "google", "tok")
	require.ErrorIs(t, err, common.ErrInvalidProviderToken)
}

func TestVerify_UnknownProviderAndEmptyToken(t *testing.T) {
	fp := newFakeProvider(t, status(200, `{"sub":"1"}`))
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	_, err := v.Verify(context.Background(), "myspace", "tok")
	require.ErrorIs(t, err, common.ErrInvalidProviderToken)

	_, err = v.Verify(context.Background(), "google", "  ")
	require.ErrorIs(t, err, common.ErrInvalidProviderToken)

	assert.EqualValues(t, 0, fp.calls.Load())
	assert.True(t, v.Supported("Kakao"))
	assert.False(t, v.Supported("myspace"))
}

func TestVerify_TransientFailureRetriedOnce(t *testing.T) {
	fp := newFakeProvider(t,
		status(http.StatusServiceUnavailable, `{}`),
		status(200, `{"sub":"g-2"}`),
	)
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	p, err := v.Verify(context.Background(), "google", "tok")
	require.NoError(t, err)
	assert.Equal(t, "g-2", p.SubjectID)
	assert.EqualValues(t, 2, fp.calls.Load())
}

func TestVerify_PersistentFailureGivesUpAfterOneRetry(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		fp := newFakeProvider(t, status(code, `{}`))
		v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

		_, err := v.Verify(context.Background(), "google", "tok")
		require.ErrorIs(t, err, common.ErrProviderUnavailable, "status %d", code)
		assert.EqualValues(t, 2, fp.calls.Load(), "status %d", code)
	}
}

func TestVerify_ZeroRetries(t *testing.T) {
	fp := newFakeProvider(t, status(http.StatusBadGateway, `{}`))
	v := NewVerifier(DefaultProviders(Endpoints{Google: fp.srv.URL}), time.Second, 0, logging.NewNopLogger())

	_, err := v.Verify(context.Background(), "google", "tok")
	require.ErrorIs(t, err, common.ErrProviderUnavailable)
	assert.EqualValues(t, 1, fp.calls.Load())
}

func TestVerify_TimeoutIsUnavailable(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, 50*time.Millisecond)

	start := time.Now()
	_, err := v.Verify(context.Background(), "google", "tok")
	require.ErrorIs(t, err, common.ErrProviderUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestVerify_NetworkErrorIsUnavailable(t *testing.T) {
	fp := newFakeProvider(t, status(200, `{"sub":"1"}`))
	url := fp.srv.URL
	fp.srv.Close()

	v := newTestVerifier(Endpoints{Google: url}, time.Second)
	_, err := v.Verify(context.Background(), "google", "tok")
	require.ErrorIs(t, err, common.ErrProviderUnavailable)
}

func TestVerify_CanceledContextIsUnavailable(t *testing.T) {
	fp := newFakeProvider(t, status(200, `{"sub":"1"}`))
	v := newTestVerifier(Endpoints{Google: fp.srv.URL}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, "google", "tok")
	require.ErrorIs(t, err, common.ErrProviderUnavailable)
}

func TestDefaultProviders_UseDefaultsWhenEmpty(t *testing.T) {
	ps := DefaultProviders(Endpoints{Kakao: "http://kakao.test"})
	urls := map[string]string{}
	for _, p := range ps {
		urls[p.Name] = p.UserInfoURL
	}
	assert.Equal(t, GoogleUserInfoURL, urls[ProviderGoogle])
	assert.Equal(t, GitHubUserInfoURL, urls[ProviderGitHub])
	assert.Equal(t, "http://kakao.test", urls[ProviderKakao])
	assert.Equal(t, NaverUserInfoURL, urls[ProviderNaver])
}

func TestVerify_CountsEveryAttempt(t *testing.T) {
	fp := newFakeProvider(t,
		status(http.StatusServiceUnavailable, `{}`),
		status(200, `{"sub":"g-3"}`),
	)
	m := metrics.New()
	v := NewVerifier(DefaultProviders(Endpoints{Google: fp.srv.URL}), time.Second, 1, logging.NewNopLogger(),
		WithBackoff(time.Millisecond), WithMetrics(m))

	_, err := v.Verify(context.Background(), "google", "tok")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(m.Registry(), "travelplanner_social_verifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per outcome")
}
