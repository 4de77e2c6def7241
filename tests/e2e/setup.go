//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"booking-checkout/cmd/bootstrap"
	"booking-checkout/internal/handler/middleware"
	"booking-checkout/internal/infra/db"
	"booking-checkout/internal/infra/migrations"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/jwt"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/tests/common/dbtest"

	"github.com/docker/go-connections/nat"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx"
)

const (
	testUser     = "test"
	testPassword = "testpass"

	// HoldTTL is short so expiry can be observed inside a test.
	HoldTTL = 3 * time.Second
)

type ContainerInfo struct {
	Host string
	Port nat.Port
}

func (c ContainerInfo) Addr() string {
	return net.JoinHostPort(c.Host, c.Port.Port())
}

// sharedContainer starts its container once per test process.
type sharedContainer struct {
	once sync.Once
	c    testcontainers.Container
	err  error
}

var (
	postgresContainer sharedContainer
	redisContainer    sharedContainer
)

func (s *sharedContainer) start(t *testing.T, req testcontainers.ContainerRequest, port string) ContainerInfo {
	t.Helper()
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
		defer cancel()
		s.c, s.err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	})
	require.NoError(t, s.err, "%sコンテナの起動に失敗", req.Name)

	info, err := getContainerHostPort(s.c, port)
	require.NoError(t, err, "%sコンテナ情報の取得に失敗", req.Name)
	return info
}

// ------------------------------------------------------------
// 各テストプロセス用にセットアップ
// ------------------------------------------------------------

type environment struct {
	pool      *pgxpool.Pool
	router    *gin.Engine
	cfg       config.Config
	publisher *RecordingPublisher
}

func setupE2EEnvironment(t *testing.T, gw *FakeGateway) environment {
	gin.SetMode(gin.TestMode)

	postgresInfo := postgresContainer.start(t, postgresRequest(), "5432/tcp")
	redisInfo := redisContainer.start(t, redisRequest(), "6379/tcp")

	pool, dbConfig := prepareDatabase(t, postgresInfo)

	cfg := createTestConfig(dbConfig, redisInfo)
	publisher := NewRecordingPublisher()
	router, app := buildE2EApp(t, pool, cfg, gw, publisher)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			slog.Warn("fxアプリケーションの停止に失敗しました", "error", err.Error())
		}
	})

	slog.Info("E2E環境の準備が完了しました",
		"postgres", postgresInfo.Addr(),
		"redis", redisInfo.Addr())

	return environment{pool: pool, router: router, cfg: cfg, publisher: publisher}
}

// ------------------------------------------------------------
// コンテナ定義
// ------------------------------------------------------------

func postgresRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Name:         "postgres-e2e-checkout",
		Image:        "postgres:17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
			"POSTGRES_DB":       "postgres",
		},
		Tmpfs: map[string]string{
			"/var/lib/postgresql/data": "rw,size=512m", // データをRAMに載せてI/O削減
		},
		Cmd: []string{
			"postgres",
			"-c", "fsync=off",
			"-c", "full_page_writes=off",
			"-c", "synchronous_commit=off",
			"-c", "max_connections=200", // 同時購入テスト用
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable",
				testUser, testPassword, host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
		Labels: map[string]string{"purpose": "e2e-tests"},
	}
}

func redisRequest() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Name:         "redis-e2e-checkout",
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		// 期限切れイベントを最初から有効にしておく
		Cmd:        []string{"redis-server", "--notify-keyspace-events", "Ex"},
		WaitingFor: wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		Labels:     map[string]string{"purpose": "e2e-tests"},
	}
}

// ------------------------------------------------------------
// データベース準備関数
// ------------------------------------------------------------
func prepareDatabase(t *testing.T, postgresInfo ContainerInfo) (*pgxpool.Pool, config.DBConfig) {
	// プロセス毎に違うDB名を生成
	dbName := "testdb_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	adminDSN := fmt.Sprintf("postgres://%s:%s@%s/postgres?sslmode=disable",
		testUser, testPassword, postgresInfo.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adminPool, err := pgxpool.New(ctx, adminDSN)
	require.NoError(t, err, "管理者接続に失敗")
	defer adminPool.Close()

	var createErr error
	for attempt := range 5 {
		if attempt > 0 {
			time.Sleep(min(time.Duration(attempt)*500*time.Millisecond, 3*time.Second))
		}
		_, createErr = adminPool.Exec(ctx, "CREATE DATABASE "+dbName)
		if createErr == nil {
			break
		}
		slog.Warn("データベース作成を再試行中", "attempt", attempt+1, "error", createErr.Error())
	}
	require.NoError(t, createErr, "テスト用データベースの作成に失敗")

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()

		cleanupPool, err := pgxpool.New(cleanupCtx, adminDSN)
		if err != nil {
			slog.Warn("クリーンアップ用のデータベース接続に失敗しました", "database", dbName, "error", err.Error())
			return
		}
		defer cleanupPool.Close()

		if _, err := cleanupPool.Exec(cleanupCtx, "DROP DATABASE IF EXISTS "+dbName+" WITH (FORCE)"); err != nil {
			slog.Warn("テストデータベースの削除に失敗しました", "database", dbName, "error", err.Error())
		}
	})

	dbConfig := config.DBConfig{
		Host:     postgresInfo.Host,
		Port:     postgresInfo.Port.Port(),
		User:     testUser,
		Password: testPassword,
		DBName:   dbName,
		SSLMode:  "disable",
		TimeZone: "UTC",
		MaxConns: 30,
	}

	require.NoError(t, migrations.Up(dbConfig.BuildMigrateDSN()), "データベースマイグレーションに失敗")

	pool, cleanup, err := db.Connect(context.Background(), dbConfig)
	require.NoError(t, err, "データベース接続に失敗")
	t.Cleanup(cleanup)

	return pool, dbConfig
}

// ------------------------------------------------------------
// E2Eテスト用アプリケーション構築関数
// 実際のDB・Redis・ワーカーを使い、決済ゲートウェイと配信先だけ差し替える
// ------------------------------------------------------------
func buildE2EApp(t *testing.T, pool *pgxpool.Pool, cfg config.Config, gw *FakeGateway, pub *RecordingPublisher) (*gin.Engine, *fx.App) {
	t.Helper()
	var router *gin.Engine

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			func() *pgxpool.Pool { return pool },
			bootstrap.NewReadDB,
			func() commands.PaymentGateway { return gw },
			func() commands.WebhookVerifier { return gw },
			func() commands.EventPublisher { return pub },
			func(cfg config.Config) middleware.TokenVerifier {
				return jwt.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
			},
			func() *gin.Engine { return gin.New() },
		),
		bootstrap.RedisModule,
		bootstrap.MetricsModule,
		bootstrap.App,
		bootstrap.WorkersModule,

		fx.Populate(&router),
		fx.NopLogger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, app.Start(ctx), "fxアプリケーションの起動に失敗")
	require.NotNil(t, router, "Routerのセットアップに失敗")

	return router, app
}

func createTestConfig(dbConfig config.DBConfig, redisInfo ContainerInfo) config.Config {
	cfg := config.NewTestConfig()
	cfg.DB = dbConfig
	cfg.Redis = config.RedisConfig{Addr: redisInfo.Addr(), Enabled: true}
	cfg.Broker.Kind = "log"
	cfg.Broker.RelayEvery = 200 * time.Millisecond
	cfg.Checkout.HoldTTL = HoldTTL
	// Redisの期限切れ通知だけで失効させる
	cfg.Checkout.SweepInterval = time.Hour
	cfg.Checkout.PollInterval = time.Hour
	return cfg
}

func getContainerHostPort(c testcontainers.Container, port string) (ContainerInfo, error) {
	ctx := context.Background()
	mappedPort, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return ContainerInfo{}, err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return ContainerInfo{}, err
	}
	return ContainerInfo{Host: host, Port: mappedPort}, nil
}

// ------------------------------------------------------------
// E2Eテストスイートで共通のセットアップ
// ------------------------------------------------------------
type SharedSuite struct {
	suite.Suite
	Router    *gin.Engine
	DB        *pgxpool.Pool // 各テストで使う DB 接続
	Config    config.Config
	Gateway   *FakeGateway
	Publisher *RecordingPublisher
}

func (s *SharedSuite) SetupSharedSuite(t *testing.T) {
	s.Gateway = NewFakeGateway()
	env := setupE2EEnvironment(t, s.Gateway)
	s.DB = env.pool
	s.Router = env.router
	s.Config = env.cfg
	s.Publisher = env.publisher
}

func (s *SharedSuite) SetupSuite() {
	s.SetupSharedSuite(s.T())
}

func (s *SharedSuite) SetupSubTest() {
	err := dbtest.ResetDB(s.DB)
	require.NoError(s.T(), err, "Failed to reset database state")
	s.Gateway.Reset()
	s.Publisher.Reset()
}

// WaitFor polls cond until it holds or timeout passes.
func (s *SharedSuite) WaitFor(cond func() bool, timeout time.Duration, msg string) {
	s.T().Helper()
	require.Eventually(s.T(), cond, timeout, 100*time.Millisecond, msg)
}
