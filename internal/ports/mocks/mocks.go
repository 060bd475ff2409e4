// Package mocks holds testify mocks for the ports interfaces.
package mocks

import (
	"context"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type MockAuthProvider struct{ mock.Mock }

var _ ports.AuthProvider = (*MockAuthProvider)(nil)

func NewMockAuthProvider(t testingT) *MockAuthProvider {
	m := &MockAuthProvider{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuthProvider) GetUser(ctx context.Context) (domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockAuthProvider) GetSession(ctx context.Context) (domain.Session, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Session), args.Error(1)
}

type MockScriptRepository struct{ mock.Mock }

var _ ports.ScriptRepository = (*MockScriptRepository)(nil)

func NewMockScriptRepository(t testingT) *MockScriptRepository {
	m := &MockScriptRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockScriptRepository) UpsertScript(ctx context.Context, script domain.TradingScript) error {
	return m.Called(ctx, script).Error(0)
}

func (m *MockScriptRepository) GetScript(ctx context.Context, userID, name string) (domain.TradingScript, error) {
	args := m.Called(ctx, userID, name)
	return args.Get(0).(domain.TradingScript), args.Error(1)
}

func (m *MockScriptRepository) ListScriptsByChat(ctx context.Context, userID, chatID string) ([]domain.TradingScript, error) {
	args := m.Called(ctx, userID, chatID)
	scripts, _ := args.Get(0).([]domain.TradingScript)
	return scripts, args.Error(1)
}

type MockBotConfigRepository struct{ mock.Mock }

var _ ports.BotConfigRepository = (*MockBotConfigRepository)(nil)

func NewMockBotConfigRepository(t testingT) *MockBotConfigRepository {
	m := &MockBotConfigRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBotConfigRepository) SaveBotConfiguration(ctx context.Context, cfg domain.BotConfiguration) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockBotConfigRepository) FindByStrategy(ctx context.Context, userID, strategy string) (domain.BotConfiguration, error) {
	args := m.Called(ctx, userID, strategy)
	return args.Get(0).(domain.BotConfiguration), args.Error(1)
}

func (m *MockBotConfigRepository) ListBotConfigurations(ctx context.Context, userID string) ([]domain.BotConfiguration, error) {
	args := m.Called(ctx, userID)
	cfgs, _ := args.Get(0).([]domain.BotConfiguration)
	return cfgs, args.Error(1)
}

type MockChatHistoryRepository struct{ mock.Mock }

var _ ports.ChatHistoryRepository = (*MockChatHistoryRepository)(nil)

func NewMockChatHistoryRepository(t testingT) *MockChatHistoryRepository {
	m := &MockChatHistoryRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockChatHistoryRepository) SaveChat(ctx context.Context, userID string, chat domain.ChatHistory) error {
	return m.Called(ctx, userID, chat).Error(0)
}

func (m *MockChatHistoryRepository) GetChat(ctx context.Context, userID, id string) (domain.ChatHistory, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(domain.ChatHistory), args.Error(1)
}

type MockStrategyNameRepository struct{ mock.Mock }

var _ ports.StrategyNameRepository = (*MockStrategyNameRepository)(nil)

func NewMockStrategyNameRepository(t testingT) *MockStrategyNameRepository {
	m := &MockStrategyNameRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockStrategyNameRepository) GetStrategyName(ctx context.Context, session domain.SessionID) (domain.StrategyIdentity, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(domain.StrategyIdentity), args.Error(1)
}

func (m *MockStrategyNameRepository) SaveStrategyName(ctx context.Context, session domain.SessionID, identity domain.StrategyIdentity) error {
	return m.Called(ctx, session, identity).Error(0)
}

type MockOrchestrator struct{ mock.Mock }

var _ ports.Orchestrator = (*MockOrchestrator)(nil)

func NewMockOrchestrator(t testingT) *MockOrchestrator {
	m := &MockOrchestrator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockOrchestrator) PodStatus(ctx context.Context, botName, userID string) (domain.PodStatus, error) {
	args := m.Called(ctx, botName, userID)
	return args.Get(0).(domain.PodStatus), args.Error(1)
}

func (m *MockOrchestrator) PodLogs(ctx context.Context, botName, userID string, lines int) ([]string, error) {
	args := m.Called(ctx, botName, userID, lines)
	logs, _ := args.Get(0).([]string)
	return logs, args.Error(1)
}

func (m *MockOrchestrator) Deploy(ctx context.Context, req ports.DeployRequest) (ports.DeployResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.DeployResult), args.Error(1)
}

type MockBotAPI struct{ mock.Mock }

var _ ports.BotAPI = (*MockBotAPI)(nil)

func NewMockBotAPI(t testingT) *MockBotAPI {
	m := &MockBotAPI{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBotAPI) Health(ctx context.Context, strategy, userID string) (domain.Health, error) {
	args := m.Called(ctx, strategy, userID)
	return args.Get(0).(domain.Health), args.Error(1)
}

func (m *MockBotAPI) OpenTrades(ctx context.Context, strategy, userID string) (int, error) {
	args := m.Called(ctx, strategy, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockBotAPI) Control(ctx context.Context, strategy, userID string, action ports.BotControl) (ports.ControlResult, error) {
	args := m.Called(ctx, strategy, userID, action)
	return args.Get(0).(ports.ControlResult), args.Error(1)
}

type MockCredentialStore struct{ mock.Mock }

var _ ports.CredentialStore = (*MockCredentialStore)(nil)

func NewMockCredentialStore(t testingT) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCredentialStore) Load(ctx context.Context, profile string) (domain.Credentials, error) {
	args := m.Called(ctx, profile)
	return args.Get(0).(domain.Credentials), args.Error(1)
}

func (m *MockCredentialStore) Save(ctx context.Context, profile string, creds domain.Credentials) error {
	return m.Called(ctx, profile, creds).Error(0)
}

func (m *MockCredentialStore) Delete(ctx context.Context, profile string) error {
	return m.Called(ctx, profile).Error(0)
}
