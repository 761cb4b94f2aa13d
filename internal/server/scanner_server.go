package server

import (
	"context"
	"strings"
	"time"

	"github.com/triage-ai/phishguard/internal/action"
	"github.com/triage-ai/phishguard/internal/agent"
	"github.com/triage-ai/phishguard/internal/auth"
	"github.com/triage-ai/phishguard/internal/engine"
	"github.com/triage-ai/phishguard/internal/settings"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ScannerServer implements the ScannerService gRPC service on top of the agent.
type ScannerServer struct {
	agent      *agent.Agent
	dispatcher *action.Dispatcher
	settings   *settings.Store
	auth       auth.Authenticator // nil accepts every caller
	logger     *zap.Logger
}

// NewScannerServer creates a new ScannerServer with the given dependencies.
func NewScannerServer(
	ag *agent.Agent,
	dispatcher *action.Dispatcher,
	authenticator auth.Authenticator,
	logger *zap.Logger,
) *ScannerServer {
	return &ScannerServer{
		agent:      ag,
		dispatcher: dispatcher,
		settings:   ag.Settings(),
		auth:       authenticator,
		logger:     logger,
	}
}

func (s *ScannerServer) authenticate(ctx context.Context) error {
	if s.auth == nil {
		return nil
	}
	if err := s.auth.Authenticate(ctx); err != nil {
		return status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
	}
	return nil
}

// Scan implements ScannerService.Scan.
func (s *ScannerServer) Scan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	var req ScanRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, status.Error(codes.InvalidArgument, "url is required")
	}

	// Scans outlive the caller so counters stay consistent.
	ctx = context.WithoutCancel(ctx)

	var (
		out    engine.Outcome
		act    action.Action
		result ScanResult
	)
	switch action.Trigger(req.Trigger) {
	case "", action.TriggerManual:
		out, act = s.agent.ScanNow(ctx, req.URL)
	case action.TriggerHover:
		out, act = s.agent.HandleHover(ctx, req.URL)
	case action.TriggerNavigation:
		var handled bool
		out, act, handled = s.agent.HandleNavigation(ctx, agent.NavigationEvent{TabID: req.TabID, URL: req.URL})
		if !handled {
			result.Skipped = true
		} else if act == action.ActionBlocked {
			result.Redirect = s.dispatcher.BlockedTarget(req.URL, out.Verdict)
		}
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown trigger %q", req.Trigger)
	}

	result.URL = req.URL
	result.Verdict = out.Verdict
	result.Source = out.Source.String()
	result.Action = string(act)
	result.LatencyMs = float64(out.Latency) / float64(time.Millisecond)
	if out.Verdict != nil {
		result.Status = action.Status(out.Verdict.RiskLevel)
	}

	resp, err := toStruct(result)
	if err != nil {
		s.logger.Error("failed to encode scan result", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return resp, nil
}

// Report implements ScannerService.Report.
func (s *ScannerServer) Report(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	var req ReportRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, status.Error(codes.InvalidArgument, "url is required")
	}

	s.agent.Report(context.WithoutCancel(ctx), req.URL)

	resp, err := toStruct(ReportResult{
		Success: true,
		Message: "Phishing report submitted!",
		Stats:   s.settings.Stats(),
	})
	if err != nil {
		s.logger.Error("failed to encode report result", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return resp, nil
}

// NewGRPCServer builds a gRPC server with keepalive limits, the scanner
// service, the health service and reflection registered. The returned health
// server should be flipped to NOT_SERVING before GracefulStop.
func NewGRPCServer(srv *ScannerServer) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	RegisterScannerServiceServer(grpcServer, srv)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Lists services for grpcurl; messages are plain google.protobuf.Struct.
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}
