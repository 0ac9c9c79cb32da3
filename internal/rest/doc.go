// Package rest implements the HTTP fallback path for operations that do
// not need the realtime transport: publishing a message via POST
// /message/{class}/{id} and fetching the authoritative presence list via
// GET /presence-list/{class}/{id}.
package rest
