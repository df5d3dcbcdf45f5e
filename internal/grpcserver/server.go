// Package grpcserver implements the siteopt RunService over the run history repository.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mtiwari1/siteopt/internal/repository"
	pb "github.com/mtiwari1/siteopt/proto"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server implements the RunServiceServer gRPC interface.
// Dependencies are injected via the constructor, no global state.
type Server struct {
	repo   repository.Repository
	logger *slog.Logger
}

// NewServer creates a gRPC server backed by the given repository.
func NewServer(repo repository.Repository, logger *slog.Logger) *Server {
	return &Server{repo: repo, logger: logger}
}

// GetRun returns one run summary.
func (s *Server) GetRun(ctx context.Context, req *pb.GetRunRequest) (*pb.GetRunResponse, error) {
	s.logger.Info("grpc GetRun", slog.String("run_id", req.Id))

	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "GetRun: id is required")
	}
	run, err := s.repo.GetByID(ctx, req.Id)
	if err != nil {
		return nil, mapRepoError(err, "GetRun")
	}
	return &pb.GetRunResponse{Run: toProto(run)}, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Server) ListRuns(ctx context.Context, req *pb.ListRunsRequest) (*pb.ListRunsResponse, error) {
	s.logger.Info("grpc ListRuns", slog.Int("limit", int(req.Limit)))

	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "ListRuns: limit must not be negative")
	}
	runs, err := s.repo.ListAll(ctx, int(req.Limit))
	if err != nil {
		return nil, mapRepoError(err, "ListRuns")
	}
	out := make([]*pb.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, toProto(r))
	}
	return &pb.ListRunsResponse{Runs: out}, nil
}

func toProto(r *repository.Run) *pb.Run {
	return &pb.Run{
		Id:         r.ID,
		Source:     r.Source,
		Status:     r.Status,
		StatsJson:  string(r.Stats),
		ArchiveUrl: r.ArchiveURL,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// mapRepoError converts repository errors to gRPC status codes.
func mapRepoError(err error, method string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: run not found", method)
	case errors.Is(err, repository.ErrDuplicate):
		return status.Errorf(codes.AlreadyExists, "%s: run already exists", method)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: database timeout", method)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: request cancelled", method)
	}
	return status.Errorf(codes.Internal, "%s: %v", method, err)
}
