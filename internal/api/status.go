package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hearthtale/internal/api/models"
	"github.com/smazurov/hearthtale/internal/process"
)

func (s *Server) registerServerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-server",
		Method:      http.MethodGet,
		Path:        "/api/server",
		Summary:     "Server Status",
		Description: "Lifecycle state of the managed inference server",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ServerResponse, error) {
		return &models.ServerResponse{Body: toServerData(s.options.Server.Info())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server-health",
		Method:      http.MethodGet,
		Path:        "/api/server/health",
		Summary:     "Server Health",
		Description: "Probe the managed server once and report whether it answers",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.ServerHealthResponse, error) {
		healthy := s.options.Health.IsHealthy(ctx)
		return &models.ServerHealthResponse{
			Body: models.ServerHealthData{
				Healthy: healthy,
				State:   string(s.options.Server.Info().State),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-server-output",
		Method:      http.MethodGet,
		Path:        "/api/server/output",
		Summary:     "Server Output",
		Description: "Most recent stdout and stderr lines of the managed server",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ServerOutputResponse, error) {
		recent := s.options.Server.RecentOutput()
		lines := make([]models.OutputLineData, 0, len(recent))
		for _, l := range recent {
			lines = append(lines, models.OutputLineData{Time: l.Time, Source: l.Source, Text: l.Text})
		}
		return &models.ServerOutputResponse{
			Body: models.ServerOutputData{Lines: lines, Count: len(lines)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-server",
		Method:      http.MethodPost,
		Path:        "/api/server/restart",
		Summary:     "Restart Server",
		Description: "Stop the managed server, wait the restart delay and start it again",
		Tags:        []string{"server"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.ServerResponse, error) {
		s.logger.Info("Server restart requested via API")
		if err := s.options.Server.Restart(); err != nil {
			s.logger.Error("Restart via API failed", "error", err)
			return nil, huma.Error500InternalServerError("Failed to restart server", err)
		}
		return &models.ServerResponse{Body: toServerData(s.options.Server.Info())}, nil
	})
}

func toServerData(info process.Info) models.ServerData {
	data := models.ServerData{
		State:      string(info.State),
		Executable: info.Executable,
		Address:    info.Address,
		PID:        info.PID,
		ExitCode:   info.ExitCode,
		Restarts:   info.Restarts,
	}
	if !info.StartedAt.IsZero() {
		startedAt := info.StartedAt
		data.StartedAt = &startedAt
	}
	if info.LastError != nil {
		data.LastError = info.LastError.Error()
	}
	return data
}
