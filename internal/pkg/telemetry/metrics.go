package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the sync client and the store side.
const (
	AttrFeatureID = attribute.Key("shotengai.feature_id")
	AttrSyncOp    = attribute.Key("shotengai.sync.op")
	AttrSyncKind  = attribute.Key("shotengai.sync.error_kind")
	AttrSegments  = attribute.Key("shotengai.geometry.segments")
	AttrVertices  = attribute.Key("shotengai.geometry.vertices")
)

// Span names.
const (
	SpanSyncSave           = "sync.save"
	SpanSyncUpdateGeometry = "sync.update_geometry"
	SpanSyncDelete         = "sync.delete"
	SpanSyncFetch          = "sync.fetch"
	SpanStoreUpsert        = "store.upsert"
	SpanStoreUpdateGeom    = "store.update_geometry"
	SpanStoreDelete        = "store.delete"
	SpanStoreList          = "store.list_all"
)
