package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) Variants(ctx context.Context) ([]*models.VariantRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.VariantRecord), args.Error(1)
}

func (m *MockPersistence) VariantByID(ctx context.Context, id string) (*models.VariantRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.VariantRecord), args.Error(1)
}

func (m *MockPersistence) SaveVariant(ctx context.Context, record *models.VariantRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockPersistence) DeleteVariant(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) Environments(ctx context.Context) ([]*models.Environment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Environment), args.Error(1)
}

func (m *MockPersistence) SaveEnvironment(ctx context.Context, env *models.Environment) error {
	args := m.Called(ctx, env)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
