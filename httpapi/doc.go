// Package httpapi exposes the engine over a JSON HTTP API routed with chi.
//
// Public routes live under /auth/v1, administrative routes under /admin/v1.
// Every response is an envelope: {"status":"success","data":...} or
// {"status":"error","error":{"code":...,"message":...}}. Credential and
// token failures use fixed messages so responses do not reveal whether an
// identity exists.
package httpapi
