// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	AssetIDKey = "asset.id"

	RenditionNameKey    = "rendition.name"
	RenditionHeightKey  = "rendition.height"
	RenditionBitrateKey = "rendition.bitrate_kbps"

	JobHandleKey  = "job.handle"
	JobAttemptKey = "job.attempt"
	JobStatusKey  = "job.status"

	StorageBackendKey = "storage.backend"
	StorageObjectKey  = "storage.object"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RenditionAttributes describes one encoder pass.
func RenditionAttributes(assetID, name string, height, bitrateKbps int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AssetIDKey, assetID),
		attribute.String(RenditionNameKey, name),
		attribute.Int(RenditionHeightKey, height),
		attribute.Int(RenditionBitrateKey, bitrateKbps),
	}
}

// JobAttributes describes a job attempt. Empty status is omitted.
func JobAttributes(handle, assetID string, attempt int, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(JobHandleKey, handle),
		attribute.String(AssetIDKey, assetID),
		attribute.Int(JobAttemptKey, attempt),
	}
	if status != "" {
		attrs = append(attrs, attribute.String(JobStatusKey, status))
	}
	return attrs
}

// StorageAttributes describes an object store call.
func StorageAttributes(backend, object string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StorageBackendKey, backend),
		attribute.String(StorageObjectKey, object),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
