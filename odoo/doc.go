// Package odoo adapts the gateway's record operations to an Odoo backend.
//
// The Adapter registers eight advanced methods on a jsonrpc.Server:
// authenticate, create, read, search, search_read, update, delete and
// fields_get. Each takes params of the form {"args": [...]}, where args is a
// positional tuple:
//
//	authenticate  [db, login, password, {}]
//	create        [db, uid, key, model, "create", values]
//	read          [db, uid, key, model, "read", domain, options]
//	search        [db, uid, key, model, "search", domain]
//	search_read   [db, uid, key, model, "search_read", domain, options]
//	update        [db, uid, key, model, "write", ids, values]
//	delete        [db, uid, key, model, "unlink", ids]
//	fields_get    [db, uid, key, model, "fields_get", domain, {"attributes": [...]}]
//
// The adapter forwards each call to the backend as
//
//	{"jsonrpc": "2.0", "method": "call", "params": {"service": ..., "method": ..., "args": ...}, "id": <fresh>}
//
// using service "common" and method "authenticate" for login and service
// "object" for everything else. The backend's result or error is returned
// under the inbound request's id.
//
// A backend that cannot be reached makes authenticate answer false; every
// other operation answers CodeInternalError. A tuple of the wrong shape is
// answered with CodeInvalidParams and nothing is sent.
package odoo
