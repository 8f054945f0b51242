package lock_test

import (
	"context"
	"time"

	"github.com/mudler/LocalCircle/core/lock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Resource lock", func() {
	var (
		ctx context.Context
		l   *lock.Lock
	)

	BeforeEach(func() {
		ctx = context.Background()
		l = lock.New()
	})

	It("starts idle and is taken at once when free", func() {
		Expect(l.Holder()).To(Equal(lock.Idle))
		Expect(l.Acquire(ctx, lock.BackgroundTick)).To(Succeed())
		Expect(l.Holder()).To(Equal(lock.BackgroundTick))
	})

	It("ignores releases from a class that does not hold it", func() {
		Expect(l.Acquire(ctx, lock.CatchUp)).To(Succeed())
		Expect(l.Release(lock.LiveChat)).To(BeFalse())
		Expect(l.Holder()).To(Equal(lock.CatchUp))
		Expect(l.Release(lock.CatchUp)).To(BeTrue())
		Expect(l.Holder()).To(Equal(lock.Idle))
	})

	It("rejects idle as a requester", func() {
		Expect(l.Acquire(ctx, lock.Idle)).ToNot(Succeed())
	})

	It("fails immediately when the same class holds it", func() {
		Expect(l.Acquire(ctx, lock.BackgroundTick)).To(Succeed())
		start := time.Now()
		Expect(l.Acquire(ctx, lock.BackgroundTick)).To(MatchError(lock.ErrBusy))
		Expect(time.Since(start)).To(BeNumerically("<", 50*time.Millisecond))
	})

	It("grants live chat within the polling window once the tick releases", func() {
		Expect(l.Acquire(ctx, lock.BackgroundTick)).To(Succeed())

		done := make(chan error, 1)
		go func() { done <- l.Acquire(ctx, lock.LiveChat) }()

		Consistently(done, 300*time.Millisecond).ShouldNot(Receive())
		released := time.Now()
		Expect(l.Release(lock.BackgroundTick)).To(BeTrue())

		var err error
		Eventually(done, time.Second).Should(Receive(&err))
		Expect(err).ToNot(HaveOccurred())
		Expect(time.Since(released)).To(BeNumerically("<", 500*time.Millisecond))
		Expect(l.Holder()).To(Equal(lock.LiveChat))
	})

	It("times out a background tick while live chat holds it", func() {
		Expect(l.Acquire(ctx, lock.LiveChat)).To(Succeed())

		start := time.Now()
		err := l.Acquire(ctx, lock.BackgroundTick)
		elapsed := time.Since(start)

		Expect(err).To(MatchError(lock.ErrTimeout))
		Expect(lock.Skippable(err)).To(BeTrue())
		Expect(elapsed).To(BeNumerically(">=", lock.DefaultTimeout))
		Expect(elapsed).To(BeNumerically("<", lock.DefaultTimeout+time.Second))
		Expect(l.Holder()).To(Equal(lock.LiveChat))
	})

	It("hands a released lock to the highest waiting class", func() {
		l = lock.New(lock.WithPollInterval(10*time.Millisecond), lock.WithTimeout(500*time.Millisecond))
		Expect(l.Acquire(ctx, lock.CatchUp)).To(Succeed())

		tick := make(chan error, 1)
		live := make(chan error, 1)
		go func() { tick <- l.Acquire(ctx, lock.BackgroundTick) }()
		go func() { live <- l.Acquire(ctx, lock.LiveChat) }()
		time.Sleep(50 * time.Millisecond)

		Expect(l.Release(lock.CatchUp)).To(BeTrue())

		var err error
		Eventually(live, time.Second).Should(Receive(&err))
		Expect(err).ToNot(HaveOccurred())
		Expect(l.Holder()).To(Equal(lock.LiveChat))

		Eventually(tick, time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(lock.ErrTimeout))
	})

	It("stops waiting when the context is cancelled", func() {
		Expect(l.Acquire(ctx, lock.LiveChat)).To(Succeed())
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		Expect(l.Acquire(cctx, lock.CatchUp)).To(MatchError(context.Canceled))
	})

	It("runs a function under the lock and releases it afterwards", func() {
		called := false
		err := l.Do(ctx, lock.CatchUp, func(context.Context) error {
			called = true
			Expect(l.Holder()).To(Equal(lock.CatchUp))
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(called).To(BeTrue())
		Expect(l.Holder()).To(Equal(lock.Idle))
	})

	It("records outcomes in prometheus", func() {
		reg := prometheus.NewRegistry()
		l = lock.New(lock.WithMetrics(lock.NewMetrics(reg)), lock.WithTimeout(150*time.Millisecond), lock.WithPollInterval(10*time.Millisecond))

		Expect(l.Acquire(ctx, lock.LiveChat)).To(Succeed())
		Expect(l.Acquire(ctx, lock.BackgroundTick)).To(MatchError(lock.ErrTimeout))
		Expect(l.Acquire(ctx, lock.LiveChat)).To(MatchError(lock.ErrBusy))
		l.Release(lock.LiveChat)

		Expect(testutil.GatherAndCount(reg, "localcircle_lock_acquires_total")).To(Equal(1))
		Expect(testutil.GatherAndCount(reg, "localcircle_lock_timeouts_total")).To(Equal(1))
		Expect(testutil.GatherAndCount(reg, "localcircle_lock_busy_total")).To(Equal(1))
		Expect(testutil.GatherAndCount(reg, "localcircle_lock_hold_seconds")).To(Equal(1))
	})
})
