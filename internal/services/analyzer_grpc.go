package services

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-latency/internal/api"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// AnalyzerService implements the gRPC Analyzer service over the analysis and runs services.
type AnalyzerService struct {
	logger   *slog.Logger
	analysis *AnalysisService
	runs     *RunsService
}

// NewAnalyzerService constructs the gRPC facade.
func NewAnalyzerService(logger *slog.Logger, analysis *AnalysisService, runs *RunsService) *AnalyzerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzerService{logger: logger, analysis: analysis, runs: runs}
}

// Analyze runs one capture analysis.
func (s *AnalyzerService) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.analysis == nil {
		return nil, status.Error(codes.FailedPrecondition, "analysis service not configured")
	}
	domainReq, err := api.FromStructAnalysisRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("Analyze called", slog.String("capture", domainReq.CapturePath), slog.Bool("details", domainReq.Details))
	result, err := s.analysis.Analyze(ctx, domainReq)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := api.ToStructAnalysisResult(result)
	if err != nil {
		s.logger.Error("encode analysis result failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

// SummarizeRuns averages per-run summaries of one day.
func (s *AnalyzerService) SummarizeRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.FailedPrecondition, "runs service not configured")
	}
	domainReq, err := api.FromStructRunsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	averages, err := s.runs.Summarize(ctx, domainReq)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := api.ToStructRunsAverages(averages)
	if err != nil {
		s.logger.Error("encode averages failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode averages")
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.IsSetupError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
