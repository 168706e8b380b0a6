package autorouter

import (
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/danghamo/isoboard/pkg/logger"
)

// Middleware represents middleware function signature
type Middleware func(http.Handler) http.Handler

// RegistrationOptions configures how handlers are registered
type RegistrationOptions struct {
	Prefix       string         // URL prefix (e.g., "/api/v1/")
	MethodPrefix string         // Method prefix (e.g., "board." -> "board.Place")
	Middleware   []Middleware   // Middleware chain to apply
	Logger       *logger.Logger // Defaults to the global logger
}

// Route describes one registered endpoint
type Route struct {
	Path       string `json:"path"`
	MethodName string `json:"method"`
}

// AutoRouter registers exported (w, r) methods of handler structs on a mux
type AutoRouter struct {
	mux     *http.ServeMux
	options RegistrationOptions
	logger  *logger.Logger

	mu     sync.RWMutex
	routes []Route
}

var (
	responseWriterType = reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()
	requestType        = reflect.TypeOf((*http.Request)(nil))
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
)

// NewAutoRouter creates a new auto router
func NewAutoRouter(mux *http.ServeMux, options RegistrationOptions) *AutoRouter {
	l := options.Logger
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &AutoRouter{
		mux:     mux,
		options: options,
		logger:  l.WithComponent("autorouter"),
	}
}

// RegisterHandlers registers every exported method of handler whose signature is
// func(http.ResponseWriter, *http.Request) [error]. Methods named Handle* are skipped.
func (ar *AutoRouter) RegisterHandlers(handler interface{}) error {
	methods, err := handlerMethods(handler)
	if err != nil {
		return err
	}

	for _, name := range methods {
		method := reflect.ValueOf(handler).MethodByName(name)
		ar.register(ar.buildURLPath(name), name, method)
	}
	return nil
}

// Routes returns the registered routes sorted by path
func (ar *AutoRouter) Routes() []Route {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	routes := append([]Route(nil), ar.routes...)
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes
}

// MethodNames returns the JSON-RPC style names of the registered routes
func (ar *AutoRouter) MethodNames() []string {
	routes := ar.Routes()
	names := make([]string, 0, len(routes))
	for _, r := range routes {
		names = append(names, strings.TrimPrefix(r.Path, ar.options.Prefix))
	}
	return names
}

func (ar *AutoRouter) register(path, methodName string, method reflect.Value) {
	ar.mux.Handle(path, ar.applyMiddleware(createHandlerFunc(method)))

	ar.mu.Lock()
	ar.routes = append(ar.routes, Route{Path: path, MethodName: methodName})
	ar.mu.Unlock()

	ar.logger.Debug("Auto-registered route",
		zap.String("path", path),
		zap.String("method", methodName))
}

// handlerMethods lists the registrable method names of handler
func handlerMethods(handler interface{}) ([]string, error) {
	handlerType := reflect.TypeOf(handler)
	if handlerType == nil {
		return nil, fmt.Errorf("handler must be a struct or pointer to struct")
	}

	base := handlerType
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil, fmt.Errorf("handler must be a struct or pointer to struct")
	}

	var names []string
	for i := 0; i < handlerType.NumMethod(); i++ {
		m := handlerType.Method(i)
		if !m.IsExported() || strings.HasPrefix(m.Name, "Handle") {
			continue
		}
		// Method types from reflect.Type include the receiver
		if !isValidHandlerFunc(reflect.ValueOf(handler).Method(i).Type()) {
			continue
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// isValidHandlerFunc checks func(http.ResponseWriter, *http.Request) with an optional error result
func isValidHandlerFunc(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 2 || t.NumOut() > 1 {
		return false
	}
	if t.NumOut() == 1 && !t.Out(0).Implements(errorType) {
		return false
	}
	return t.In(0).Implements(responseWriterType) && t.In(1) == requestType
}

// buildURLPath constructs the URL path from method name
func (ar *AutoRouter) buildURLPath(methodName string) string {
	if ar.options.MethodPrefix != "" {
		return ar.options.Prefix + ar.options.MethodPrefix + methodName
	}
	return ar.options.Prefix + strings.ToLower(methodName)
}

// createHandlerFunc adapts a bound method value to http.HandlerFunc
func createHandlerFunc(method reflect.Value) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := method.Call([]reflect.Value{reflect.ValueOf(w), reflect.ValueOf(r)})

		if len(results) > 0 && !results[0].IsNil() {
			if err, ok := results[0].Interface().(error); ok {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// applyMiddleware wraps handler so that the first middleware runs outermost
func (ar *AutoRouter) applyMiddleware(handler http.HandlerFunc) http.Handler {
	h := http.Handler(handler)
	for i := len(ar.options.Middleware) - 1; i >= 0; i-- {
		h = ar.options.Middleware[i](h)
	}
	return h
}
