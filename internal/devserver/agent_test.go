package devserver_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"parlor.chat/widget/internal/devserver"
	"parlor.chat/widget/internal/model"
)

var _ = Describe("Agent", func() {
	var (
		store   *devserver.Store
		session model.Session
	)

	BeforeEach(func() {
		store = devserver.NewStore()
		session = store.CreateSession("agent-1", "", "")
	})

	allEvents := func() []model.Event {
		events, err := store.ListEvents(context.Background(), session.ID, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		return events
	}

	It("runs the full reply pipeline with a shared correlation", func() {
		agent := devserver.NewAgent(store, nil, 0)
		_, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "corr-1", model.MessageData{Message: "hello"})
		Expect(err).NotTo(HaveOccurred())

		agent.Engage(session.ID, "corr-1", "hello")

		Eventually(func() int { return len(allEvents()) }).Should(Equal(5))
		events := allEvents()

		Expect(events[1].Kind).To(Equal(model.EventKindStatus))
		Expect(events[2].Kind).To(Equal(model.EventKindStatus))
		Expect(events[3].Kind).To(Equal(model.EventKindMessage))
		Expect(events[3].Source).To(Equal(model.SourceAIAgent))
		Expect(events[4].Kind).To(Equal(model.EventKindStatus))

		first, err := events[1].StatusData()
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Status).To(Equal(model.BotStatusProcessing))
		second, err := events[2].StatusData()
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Status).To(Equal(model.BotStatusTyping))
		last, err := events[4].StatusData()
		Expect(err).NotTo(HaveOccurred())
		Expect(last.Status).To(Equal(model.BotStatusReady))

		for _, event := range events[1:] {
			Expect(event.CorrelationID).To(Equal("corr-1::response"))
			Expect(event.CorrelationPrefix()).To(Equal("corr-1"))
		}
	})

	It("hands the responder the session history", func() {
		var gotHistory []model.Message
		responder := devserver.ResponderFunc(func(_ context.Context, history []model.Message, userText string) (string, error) {
			gotHistory = history
			return "reply to " + userText, nil
		})
		agent := devserver.NewAgent(store, responder, 0)
		_, err := store.Append(session.ID, model.EventKindMessage, model.SourceCustomer, "corr-1", model.MessageData{Message: "hello"})
		Expect(err).NotTo(HaveOccurred())

		agent.Engage(session.ID, "corr-1", "hello")

		Eventually(func() int { return len(allEvents()) }).Should(Equal(5))
		Expect(gotHistory).To(HaveLen(1))
		Expect(gotHistory[0].Text).To(Equal("hello"))
		Expect(gotHistory[0].Source).To(Equal(model.SourceCustomer))
	})

	It("emits an error status when the responder fails", func() {
		responder := devserver.ResponderFunc(func(context.Context, []model.Message, string) (string, error) {
			return "", errors.New("model unavailable")
		})
		agent := devserver.NewAgent(store, responder, 0)

		agent.Engage(session.ID, "corr-1", "hello")

		Eventually(func() int { return len(allEvents()) }).Should(Equal(3))
		events := allEvents()

		last, err := events[2].StatusData()
		Expect(err).NotTo(HaveOccurred())
		Expect(last.Status).To(Equal(model.BotStatusError))
		Expect(last.Exception).To(Equal("model unavailable"))

		for _, event := range events {
			Expect(event.Kind).NotTo(Equal(model.EventKindMessage))
		}
	})
})
