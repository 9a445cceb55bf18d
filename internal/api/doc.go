// Package api serves the HTTP control API.
//
// All responses except the telemetry stream and /metrics use one JSON
// envelope:
//
//	{"result":"ok","data":{...},"correlationId":"..."}
//	{"result":"error","code":"NOT_CONNECTED","message":"...","correlationId":"..."}
//
// Routes live under /api/v1. When auth is configured every route except
// /api/v1/health needs a bearer token; reads need the read scope, control
// actions the control scope and the event stream the telemetry scope.
package api
