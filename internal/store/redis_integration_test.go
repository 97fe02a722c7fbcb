// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/store"
)

var _ = Describe("RedisMessageStore", Ordered, func() {
	var (
		ctx       context.Context
		container testcontainers.Container
		redisURL  string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		Expect(err).NotTo(HaveOccurred())

		endpoint, err := container.Endpoint(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		redisURL = "redis://" + endpoint
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	newStore := func(db int, maxLen int64) *store.RedisMessageStore {
		s, err := store.NewRedisMessageStore(ctx, fmt.Sprintf("%s/%d", redisURL, db), maxLen, store.RetryConfig{Retries: 3, Backoff: 100 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)
		return s
	}

	It("returns the newest messages oldest first", func() {
		s := newStore(1, 0)
		base := time.UnixMilli(1_700_000_000_000)
		for i := range 5 {
			Expect(s.Append(ctx, chat.RoomPublic, userMessage(fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second)))).To(Succeed())
		}

		got, err := s.RecentTail(ctx, chat.RoomPublic, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Body).To(Equal("msg-3"))
		Expect(got[1].Body).To(Equal("msg-4"))
	})

	It("is idempotent per message", func() {
		s := newStore(2, 0)
		msg := userMessage("once", time.UnixMilli(1_700_000_000_000))
		Expect(s.Append(ctx, chat.RoomAdmin, msg)).To(Succeed())
		Expect(s.Append(ctx, chat.RoomAdmin, msg)).To(Succeed())

		got, err := s.RecentTail(ctx, chat.RoomAdmin, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal(msg.ID))
	})

	It("trims each room to maxLen", func() {
		s := newStore(3, 3)
		base := time.UnixMilli(1_700_000_000_000)
		for i := range 5 {
			Expect(s.Append(ctx, chat.RoomPublic, userMessage(fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second)))).To(Succeed())
		}

		got, err := s.RecentTail(ctx, chat.RoomPublic, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		Expect(got[0].Body).To(Equal("msg-2"))
	})
})
