package router

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/seawire/vela/internal/logger"
)

type RouteInfo struct {
	Handler     http.HandlerFunc
	Description string
	Method      string
	Order       int
	IsRelay     bool
}

type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   *logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(logger *logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes:   make(map[string]RouteInfo),
		logger:   logger,
		orderSeq: 0,
	}
}

func (r *RouteRegistry) Register(route string, handler http.HandlerFunc, description string) {
	r.RegisterWithMethod(route, handler, description, "GET")
}

func (r *RouteRegistry) RegisterWithMethod(route string, handler http.HandlerFunc, description, method string) {
	r.registerWithMethod(route, handler, description, method, false)
}

// RegisterRelayRoute marks a route as a completion relay endpoint so the
// middleware wiring can apply the stricter limits to it
func (r *RouteRegistry) RegisterRelayRoute(route string, handler http.HandlerFunc, description, method string) {
	r.registerWithMethod(route, handler, description, method, true)
}

func (r *RouteRegistry) registerWithMethod(route string, handler http.HandlerFunc, description, method string, isRelay bool) {
	r.routes[route] = RouteInfo{
		Handler:     handler,
		Description: description,
		Method:      method,
		Order:       r.orderSeq,
		IsRelay:     isRelay,
	}
	r.orderSeq++
}

// Middleware wraps a handler; relay routes and plain routes can get
// different chains
type Middleware func(http.Handler) http.Handler

func (r *RouteRegistry) WireUp(mux *http.ServeMux, relayChain []Middleware, plainChain []Middleware) {
	for route, info := range r.routes {
		var handler http.Handler = info.Handler
		chain := plainChain
		if info.IsRelay {
			chain = relayChain
		}
		for i := len(chain) - 1; i >= 0; i-- {
			handler = chain[i](handler)
		}
		mux.Handle(route, handler)
	}
	r.logRoutesTable()
}

func (r *RouteRegistry) logRoutesTable() {
	if len(r.routes) == 0 {
		return
	}

	type routeEntry struct {
		path   string
		method string
		desc   string
		order  int
	}

	var entries []routeEntry
	for route, info := range r.routes {
		entries = append(entries, routeEntry{
			path:   route,
			method: info.Method,
			desc:   info.Description,
			order:  info.Order,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}

	for _, entry := range entries {
		tableData = append(tableData, []string{
			entry.path,
			entry.method,
			entry.desc,
		})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}

func (r *RouteRegistry) GetRoutes() map[string]RouteInfo {
	return r.routes
}
