// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/store"
)

func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("todochat_test"),
		postgres.WithUsername("todochat"),
		postgres.WithPassword("todochat"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

func userMessage(body string, at time.Time) chat.Message {
	return chat.Message{
		ID:         chat.NewULID(at),
		AuthorType: chat.AuthorUser,
		AuthorID:   "user-alice",
		AuthorName: "Alice",
		Body:       body,
		CreatedAt:  at,
	}
}

var _ = Describe("PostgresMessageStore", Ordered, func() {
	var (
		ctx       context.Context
		pool      *pgxpool.Pool
		terminate func()
		messages  *store.PostgresMessageStore
	)

	BeforeAll(func() {
		ctx = context.Background()
		var connStr string
		var err error
		connStr, terminate, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(BeNumerically(">=", 2))
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, connStr, store.RetryConfig{Retries: 3, Backoff: 100 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		messages = store.NewPostgresMessageStore(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if terminate != nil {
			terminate()
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE chat_messages`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns the newest messages oldest first", func() {
		base := time.UnixMilli(1_700_000_000_000)
		for i := range 5 {
			msg := userMessage(fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
			Expect(messages.Append(ctx, chat.RoomPublic, msg)).To(Succeed())
		}

		got, err := messages.RecentTail(ctx, chat.RoomPublic, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].Body).To(Equal("msg-2"))
		Expect(got[2].Body).To(Equal("msg-4"))
		Expect(got[2].CreatedAt.Equal(base.Add(4 * time.Second))).To(BeTrue())
	})

	It("keeps rooms separate", func() {
		now := time.UnixMilli(1_700_000_000_000)
		Expect(messages.Append(ctx, chat.RoomAdmin, userMessage("admin only", now))).To(Succeed())

		got, err := messages.RecentTail(ctx, chat.RoomPublic, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("treats a repeated append as success", func() {
		msg := userMessage("once", time.UnixMilli(1_700_000_000_000))
		Expect(messages.Append(ctx, chat.RoomPublic, msg)).To(Succeed())
		Expect(messages.Append(ctx, chat.RoomPublic, msg)).To(Succeed())

		got, err := messages.RecentTail(ctx, chat.RoomPublic, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
	})

	It("rejects bodies over the length limit", func() {
		msg := userMessage(strings.Repeat("x", 1001), time.UnixMilli(1_700_000_000_000))

		err := messages.Append(ctx, chat.RoomPublic, msg)
		Expect(err).To(HaveOccurred())
		Expect(chat.ErrorCode(err)).To(Equal("STORE_INVALID_MESSAGE"))
	})
})
