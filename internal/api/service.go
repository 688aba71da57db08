package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.latency.v1.Analyzer"

const (
	analyzeMethod       = "/" + ServiceName + "/Analyze"
	summarizeRunsMethod = "/" + ServiceName + "/SummarizeRuns"
)

// AnalyzerServer is the server API of the Analyzer service. Requests and responses are
// generic structs so clients need no generated stubs.
type AnalyzerServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SummarizeRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AnalyzerServiceDesc describes the Analyzer service for grpc.Server registration.
var AnalyzerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "SummarizeRuns", Handler: summarizeRunsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/latency/v1/analyzer.proto",
}

// RegisterAnalyzerServer registers srv on s.
func RegisterAnalyzerServer(s grpc.ServiceRegistrar, srv AnalyzerServer) {
	s.RegisterService(&AnalyzerServiceDesc, srv)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func summarizeRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).SummarizeRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: summarizeRunsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).SummarizeRuns(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyzerClient calls the Analyzer service over a client connection.
type AnalyzerClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyzerClient wraps cc.
func NewAnalyzerClient(cc grpc.ClientConnInterface) *AnalyzerClient {
	return &AnalyzerClient{cc: cc}
}

// Analyze runs a capture analysis on the server.
func (c *AnalyzerClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SummarizeRuns averages run summaries on the server.
func (c *AnalyzerClient) SummarizeRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, summarizeRunsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
