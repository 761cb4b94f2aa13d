package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/settings"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name, also used for health checks.
const ServiceName = "phishguard.v1.ScannerService"

const (
	ScanMethod   = "/" + ServiceName + "/Scan"
	ReportMethod = "/" + ServiceName + "/Report"
)

// Messages travel as google.protobuf.Struct so the service needs no
// generated code. ScanRequest and friends are their typed views.

// ScanRequest asks the agent to scan one URL for the given trigger.
type ScanRequest struct {
	URL     string `json:"url"`
	Trigger string `json:"trigger,omitempty"` // manual (default), navigation, hover
	TabID   int64  `json:"tab_id,omitempty"`
}

// ScanResult mirrors the HTTP scan response.
type ScanResult struct {
	URL       string          `json:"url"`
	Verdict   *engine.Verdict `json:"verdict"`
	Source    string          `json:"source"`
	Status    string          `json:"status,omitempty"`
	Action    string          `json:"action"`
	LatencyMs float64         `json:"latency_ms"`
	Skipped   bool            `json:"skipped,omitempty"`
	Redirect  string          `json:"redirect,omitempty"`
}

// ReportRequest records a user phishing report.
type ReportRequest struct {
	URL string `json:"url"`
}

// ReportResult is returned after a report is recorded.
type ReportResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   settings.Stats `json:"stats"`
}

// ScannerServiceServer is implemented by ScannerServer.
type ScannerServiceServer interface {
	Scan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Report(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ScannerServiceDesc describes the scanner service for grpc.Server.RegisterService.
var ScannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScannerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scan", Handler: scanHandler},
		{MethodName: "Report", Handler: reportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "phishguard/v1/scanner.proto",
}

// RegisterScannerServiceServer registers srv on s.
func RegisterScannerServiceServer(s grpc.ServiceRegistrar, srv ScannerServiceServer) {
	s.RegisterService(&ScannerServiceDesc, srv)
}

func scanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScannerServiceServer).Scan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScanMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScannerServiceServer).Scan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func reportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScannerServiceServer).Report(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReportMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScannerServiceServer).Report(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// toStruct converts a JSON-tagged value into a Struct message.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("toStruct: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct message into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("fromStruct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("fromStruct: %w", err)
	}
	return nil
}
