// Package bridge implements the catalog client over JSON-RPC to a
// subprocess that owns catalog credentials and wire formats. Bridge
// failures are mapped onto the services error taxonomy; no retries happen
// at this layer.
package bridge
