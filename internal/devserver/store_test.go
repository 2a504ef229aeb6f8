package devserver_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"parlor.chat/widget/internal/devserver"
	"parlor.chat/widget/internal/model"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *devserver.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = devserver.NewStore()
	})

	It("assigns gapless increasing offsets", func() {
		session := store.CreateSession("agent-1", "", "")

		for i := 0; i < 3; i++ {
			event, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{Message: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(event.Offset).To(Equal(int64(i)))
			Expect(event.ID).NotTo(BeEmpty())
		}
	})

	It("titles the session after the opening customer message", func() {
		session := store.CreateSession("agent-1", "", "")

		_, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{Message: "  Can you   help me? "})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{Message: "another one"})
		Expect(err).NotTo(HaveOccurred())

		got, ok := store.GetSession(session.ID)
		Expect(ok).To(BeTrue())
		Expect(got.Title).To(Equal("Can you help me?"))
	})

	It("rejects appends to unknown sessions", func() {
		_, err := store.Append("nope", model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{})
		Expect(err).To(MatchError(devserver.ErrSessionNotFound))
	})

	Describe("ListEvents", func() {
		It("returns existing events at or past the cursor immediately", func() {
			session := store.CreateSession("agent-1", "", "")
			for i := 0; i < 3; i++ {
				_, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{Message: "hi"})
				Expect(err).NotTo(HaveOccurred())
			}

			events, err := store.ListEvents(ctx, session.ID, 1, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Offset).To(Equal(int64(1)))
		})

		It("wakes a blocked waiter when an event is appended", func() {
			session := store.CreateSession("agent-1", "", "")

			type result struct {
				events []model.Event
				err    error
			}
			done := make(chan result, 1)
			go func() {
				events, err := store.ListEvents(ctx, session.ID, 0, 5*time.Second)
				done <- result{events, err}
			}()

			Consistently(done, 100*time.Millisecond).ShouldNot(Receive())

			_, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "c", model.MessageData{Message: "wake up"})
			Expect(err).NotTo(HaveOccurred())

			var got result
			Eventually(done).Should(Receive(&got))
			Expect(got.err).NotTo(HaveOccurred())
			Expect(got.events).To(HaveLen(1))
		})

		It("returns an empty batch when the wait budget expires", func() {
			session := store.CreateSession("agent-1", "", "")

			events, err := store.ListEvents(ctx, session.ID, 0, 50*time.Millisecond)

			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})

		It("honors context cancellation while waiting", func() {
			session := store.CreateSession("agent-1", "", "")
			cancelCtx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() {
				_, err := store.ListEvents(cancelCtx, session.ID, 0, 5*time.Second)
				done <- err
			}()

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})

	Describe("customers", func() {
		It("resolves by display name", func() {
			created := store.CreateCustomer("cust-1", "Ada")

			found, ok := store.FindCustomerByName("Ada")
			Expect(ok).To(BeTrue())
			Expect(found.ID).To(Equal(created.ID))

			_, ok = store.FindCustomerByName("Nobody")
			Expect(ok).To(BeFalse())
		})

		It("generates an id when none is supplied", func() {
			customer := store.CreateCustomer("", "Grace")
			Expect(customer.ID).NotTo(BeEmpty())
		})
	})
})
