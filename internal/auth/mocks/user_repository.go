// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authgate/authgate/internal/auth"
)

// MockUserRepository is a mock implementation of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a new MockUserRepository bound to the
// test's lifecycle. Expectations are asserted automatically at cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByToken(ctx context.Context, token string) (*auth.User, error) {
	args := m.Called(ctx, token)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) SetBanned(ctx context.Context, externalID ulid.ULID, banned bool) error {
	args := m.Called(ctx, externalID, banned)
	return args.Error(0)
}

func (m *MockUserRepository) ClearToken(ctx context.Context, externalID ulid.ULID) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

// Compile-time interface check.
var _ auth.UserRepository = (*MockUserRepository)(nil)
