package test

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of store.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStore) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	args := m.Called(keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockStore) MultiSet(ctx context.Context, values map[string]string) error {
	args := m.Called(values)
	return args.Error(0)
}

func (m *MockStore) MultiRemove(ctx context.Context, keys ...string) error {
	args := m.Called(keys)
	return args.Error(0)
}

func (m *MockStore) Keys(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Close() error { return nil }
