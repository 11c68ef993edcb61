// Package mocks provides mock implementations for testing the briefcast job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Stats, Delete, Ping
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/briefcast/briefcast-go/internal/core JobRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// FailStalePendingJobs, DeleteOldJobs, CleanTerminalJobs, RequeueExpiredLeases
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/briefcast/briefcast-go/internal/core ReaperRepository

// Generate mock for RecordRepository interface from internal/core package.
// This creates MockRecordRepository with methods for all RecordRepository interface methods:
// Upsert, GetByID, GetByKey, UpdateProgress, SetStatus, SetContent, SetAudio
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=record_repository_mock.go github.com/briefcast/briefcast-go/internal/core RecordRepository

// Generate mock for ChannelRepository interface from internal/core package.
// This creates MockChannelRepository with methods for all ChannelRepository interface methods:
// Upsert, GetByExternalID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=channel_repository_mock.go github.com/briefcast/briefcast-go/internal/core ChannelRepository
