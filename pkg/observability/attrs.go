package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine-specific semantic convention attributes.
var (
	// Contract attributes
	AttrContractKind = attribute.Key("sapio.contract.kind")
	AttrContractHash = attribute.Key("sapio.contract.hash")
	AttrNetwork      = attribute.Key("sapio.network")

	// Branch attributes
	AttrBranchName  = attribute.Key("sapio.branch.name")
	AttrBranchKind  = attribute.Key("sapio.branch.kind")
	AttrBranchCount = attribute.Key("sapio.branch.count")

	// Session attributes
	AttrSessionID = attribute.Key("sapio.session.id")

	// Plugin attributes
	AttrPluginName    = attribute.Key("sapio.plugin.name")
	AttrPluginVersion = attribute.Key("sapio.plugin.version")
	AttrPluginMethod  = attribute.Key("sapio.plugin.method")

	// Error attributes
	AttrErrorCode = attribute.Key("sapio.error.code")
)

// CompileOperation creates attributes for a contract compilation.
func CompileOperation(kind, network string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrContractKind.String(kind),
		AttrNetwork.String(network),
	}
}

// BranchOperation creates attributes for one resolved branch.
func BranchOperation(kind, branch, branchKind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrContractKind.String(kind),
		AttrBranchName.String(branch),
		AttrBranchKind.String(branchKind),
	}
}

// SessionOperation creates attributes for session handling.
func SessionOperation(sessionID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrContractKind.String(kind),
	}
}

// PluginOperation creates attributes for a plugin call.
func PluginOperation(name, version, method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPluginName.String(name),
		AttrPluginVersion.String(version),
		AttrPluginMethod.String(method),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
