package database_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"tale-server/internal/database"
	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// IntegrationTestSuite поднимает настоящие PostgreSQL и Redis в
// контейнерах и гоняет репозитории против них.
type IntegrationTestSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	quotaRepo   interfaces.QuotaRepository
	userRepo    database.UserRepository
	sessionRepo interfaces.SessionRepository
	logger      *zap.Logger
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err, "Failed to create logger for tests")

	// Запускаем контейнер PostgreSQL
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	pgConnStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get postgres connection string")

	s.pgPool, err = pgxpool.New(s.ctx, pgConnStr)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	// Применяем встроенные миграции сервиса
	require.NoError(s.T(), database.ApplyMigrations(s.pgPool), "Failed to run migrations")

	// Запускаем контейнер Redis
	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)
	s.redisClient = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err())

	s.quotaRepo = database.NewPgQuotaRepository(s.pgPool, s.logger)
	s.userRepo = database.NewPgUserRepository(s.pgPool, s.logger)
	s.sessionRepo = database.NewRedisSessionRepository(s.redisClient, s.logger)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *IntegrationTestSuite) newUser() uuid.UUID {
	userID := uuid.New()
	require.NoError(s.T(), s.userRepo.EnsureUser(s.ctx, userID))
	return userID
}

// TestIntegrationTestSuite запускает набор тестов
func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	// Проверяем доступность Docker перед запуском
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(IntegrationTestSuite))
}

// --- Квоты ---

func (s *IntegrationTestSuite) TestConsumeQuota_FirstRequestCreatesRecord() {
	t := s.T()
	userID := s.newUser()
	now := time.Now().UTC()

	rec, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassText, 5, now)
	require.NoError(t, err)
	require.True(t, consumed)
	require.Equal(t, 1, rec.RequestCount)
}

func (s *IntegrationTestSuite) TestConsumeQuota_DeniesAtLimit() {
	t := s.T()
	userID := s.newUser()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassImage, 3, now)
		require.NoError(t, err)
		require.True(t, consumed, "request %d should be allowed", i+1)
	}

	rec, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassImage, 3, now)
	require.NoError(t, err)
	require.False(t, consumed)
	require.Equal(t, 3, rec.RequestCount, "denied request must not change the count")
}

func (s *IntegrationTestSuite) TestConsumeQuota_StaleWindowResetsToOne() {
	t := s.T()
	userID := s.newUser()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	now := time.Now().UTC()

	// Выбираем вчерашнюю квоту до упора.
	for i := 0; i < 2; i++ {
		_, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassText, 2, yesterday)
		require.NoError(t, err)
		require.True(t, consumed)
	}
	_, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassText, 2, yesterday)
	require.NoError(t, err)
	require.False(t, consumed)

	// Новый день: счетчик сбрасывается в 1, а не инкрементируется.
	rec, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassText, 2, now)
	require.NoError(t, err)
	require.True(t, consumed)
	require.Equal(t, 1, rec.RequestCount)
}

func (s *IntegrationTestSuite) TestConsumeQuota_ConcurrentRequestsNeverExceedLimit() {
	t := s.T()
	userID := s.newUser()
	now := time.Now().UTC()
	const limit = 5
	const attempts = 20

	var wg sync.WaitGroup
	results := make([]bool, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, consumed, err := s.quotaRepo.ConsumeQuota(s.ctx, userID, models.RequestClassVoice, limit, now)
			require.NoError(t, err)
			results[i] = consumed
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, ok := range results {
		if ok {
			allowed++
		}
	}
	require.Equal(t, limit, allowed, "exactly limit requests must pass under concurrency")

	rec, err := s.quotaRepo.GetQuota(s.ctx, userID, models.RequestClassVoice)
	require.NoError(t, err)
	require.Equal(t, limit, rec.RequestCount)
}

func (s *IntegrationTestSuite) TestGetQuota_MissingRecord() {
	t := s.T()

	rec, err := s.quotaRepo.GetQuota(s.ctx, s.newUser(), models.RequestClassText)
	require.NoError(t, err)
	require.Nil(t, rec)
}

// --- Сессии ---

func (s *IntegrationTestSuite) TestIsSessionActive() {
	t := s.T()
	userID := uuid.New()
	sessionID := uuid.NewString()

	require.NoError(t, s.redisClient.Set(s.ctx, "session:"+sessionID, userID.String(), time.Minute).Err())

	active, err := s.sessionRepo.IsSessionActive(s.ctx, userID, sessionID)
	require.NoError(t, err)
	require.True(t, active)

	// Чужая сессия неактивна для этого пользователя.
	active, err = s.sessionRepo.IsSessionActive(s.ctx, uuid.New(), sessionID)
	require.NoError(t, err)
	require.False(t, active)

	// Отсутствующая сессия неактивна и не является ошибкой.
	active, err = s.sessionRepo.IsSessionActive(s.ctx, userID, uuid.NewString())
	require.NoError(t, err)
	require.False(t, active)
}
