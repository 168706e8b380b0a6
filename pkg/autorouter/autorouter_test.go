package autorouter

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/isoboard/pkg/logger"
)

type sampleHandler struct {
	name string
}

func (h *sampleHandler) Place(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, "placed by %s", h.name)
}

func (h *sampleHandler) Get(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "got from %s", h.name)
}

func (h *sampleHandler) Fail(w http.ResponseWriter, r *http.Request) error {
	return errors.New("boom")
}

// Skipped: Handle prefix
func (h *sampleHandler) HandleStream(w http.ResponseWriter, r *http.Request) {}

// Skipped: wrong signature
func (h *sampleHandler) Describe() string { return h.name }

// Skipped: unexported
func (h *sampleHandler) internal(w http.ResponseWriter, r *http.Request) {}

func newRouter(mux *http.ServeMux, opts RegistrationOptions) *AutoRouter {
	opts.Logger = logger.NewNop()
	return NewAutoRouter(mux, opts)
}

func serve(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestAutoRouter_RegisterHandlers(t *testing.T) {
	mux := http.NewServeMux()
	router := newRouter(mux, RegistrationOptions{Prefix: "/api/v1/", MethodPrefix: "board."})

	require.NoError(t, router.RegisterHandlers(&sampleHandler{name: "test"}))

	t.Run("should route exported handler methods", func(t *testing.T) {
		w := serve(mux, "/api/v1/board.Place")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "placed by test", w.Body.String())

		w = serve(mux, "/api/v1/board.Get")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("should turn returned errors into 500", func(t *testing.T) {
		w := serve(mux, "/api/v1/board.Fail")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "boom")
	})

	t.Run("should skip Handle methods and non-handlers", func(t *testing.T) {
		for _, path := range []string{"/api/v1/board.HandleStream", "/api/v1/board.Describe", "/api/v1/board.internal"} {
			assert.Equal(t, http.StatusNotFound, serve(mux, path).Code, path)
		}
	})

	t.Run("should record routes sorted by path", func(t *testing.T) {
		assert.Equal(t, []Route{
			{Path: "/api/v1/board.Fail", MethodName: "Fail"},
			{Path: "/api/v1/board.Get", MethodName: "Get"},
			{Path: "/api/v1/board.Place", MethodName: "Place"},
		}, router.Routes())
		assert.Equal(t, []string{"board.Fail", "board.Get", "board.Place"}, router.MethodNames())
	})
}

func TestAutoRouter_LowercasePaths(t *testing.T) {
	mux := http.NewServeMux()
	router := newRouter(mux, RegistrationOptions{Prefix: "/x/"})
	require.NoError(t, router.RegisterHandlers(&sampleHandler{name: "quick"}))

	w := serve(mux, "/x/get")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "got from quick", w.Body.String())
}

func TestAutoRouter_Middleware(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	mux := http.NewServeMux()
	router := newRouter(mux, RegistrationOptions{
		Prefix:       "/api/v1/",
		MethodPrefix: "board.",
		Middleware:   []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, router.RegisterHandlers(&sampleHandler{}))

	serve(mux, "/api/v1/board.Get")
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestAutoRouter_RejectsNonStruct(t *testing.T) {
	router := newRouter(http.NewServeMux(), RegistrationOptions{})
	assert.Error(t, router.RegisterHandlers(42))
	assert.Error(t, router.RegisterHandlers(nil))
}
