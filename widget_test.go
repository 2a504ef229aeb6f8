package widget_test

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"parlor.chat/widget"
	"parlor.chat/widget/internal/devserver"
	"parlor.chat/widget/internal/model"
)

// fastPolling keeps the end-to-end specs snappy without changing behavior.
var fastPolling = widget.PollingConfig{
	ActiveInterval:   10 * time.Millisecond,
	NormalInterval:   20 * time.Millisecond,
	IdleInterval:     50 * time.Millisecond,
	VeryIdleInterval: 100 * time.Millisecond,
	WaitCeiling:      2 * time.Second,
	WaitFloor:        time.Second,
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		store  *devserver.Store
		server *httptest.Server
		client *widget.Client
	)

	newClient := func(opts widget.Options) *widget.Client {
		GinkgoHelper()
		opts.BaseURL = server.URL
		if opts.Polling == (widget.PollingConfig{}) {
			opts.Polling = fastPolling
		}
		c, err := widget.New(opts)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Stop)
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = devserver.NewStore()
		backend := devserver.New(store, devserver.NewAgent(store, nil, 50*time.Millisecond))
		router := gin.New()
		backend.Routes(router)
		server = httptest.NewServer(router)
		DeferCleanup(server.Close)
	})

	Describe("New", func() {
		It("requires a base url", func() {
			_, err := widget.New(widget.Options{AgentID: "agent-1"})
			Expect(err).To(HaveOccurred())
		})

		It("requires an agent or a session", func() {
			_, err := widget.New(widget.Options{BaseURL: "http://localhost:1"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("conversation round trip", func() {
		BeforeEach(func() {
			client = newClient(widget.Options{AgentID: "agent-1"})
			Expect(client.Start(ctx)).To(Succeed())
		})

		It("renders exactly one bubble for a sent message", func() {
			Expect(client.SendMessage(ctx, "hello agent")).To(Succeed())

			countBubbles := func() int {
				snapshot := client.Snapshot()
				count := 0
				for _, msg := range snapshot.Messages {
					if msg.Text == "hello agent" {
						count++
					}
				}
				if snapshot.Pending != nil && snapshot.Pending.Text == "hello agent" {
					count++
				}
				return count
			}

			Eventually(func() bool {
				snapshot := client.Snapshot()
				return snapshot.Pending == nil && countBubbles() == 1
			}, 3*time.Second).Should(BeTrue())
			Consistently(countBubbles, 300*time.Millisecond).Should(Equal(1))
		})

		It("receives the agent's reply", func() {
			Expect(client.SendMessage(ctx, "hello agent")).To(Succeed())

			Eventually(func() int {
				count := 0
				for _, msg := range client.Snapshot().Messages {
					if msg.Source == model.SourceAIAgent {
						count++
					}
				}
				return count
			}, 3*time.Second).Should(Equal(1))
		})

		It("walks the status indicator through the agent's phases", func() {
			Expect(client.SendMessage(ctx, "hello agent")).To(Succeed())

			var seen []model.BotStatus
			Eventually(func() []model.BotStatus {
				if status := client.Snapshot().Status; status != nil {
					if len(seen) == 0 || seen[len(seen)-1] != status.Phase {
						seen = append(seen, status.Phase)
					}
				}
				return seen
			}, 3*time.Second, 5*time.Millisecond).Should(ContainElement(model.BotStatusTyping))

			// The indicator disappears once the reply lands.
			Eventually(func() *widget.StatusIndicator {
				return client.Snapshot().Status
			}, 3*time.Second).Should(BeNil())
			Expect(client.Snapshot().BotStatus).To(Equal(model.BotStatusReady))
		})

		It("keeps the messages offset-ordered across exchanges", func() {
			Expect(client.SendMessage(ctx, "first")).To(Succeed())
			Eventually(func() int { return len(client.Snapshot().Messages) }, 3*time.Second).Should(Equal(2))

			Expect(client.SendMessage(ctx, "second")).To(Succeed())
			Eventually(func() int { return len(client.Snapshot().Messages) }, 3*time.Second).Should(Equal(4))

			messages := client.Snapshot().Messages
			for i := 1; i < len(messages); i++ {
				Expect(messages[i].Offset).To(BeNumerically(">", messages[i-1].Offset))
			}
		})
	})

	Describe("session resumption", func() {
		It("adopts an existing session id without creating a new one", func() {
			existing := store.CreateSession("agent-1", "", "")
			client = newClient(widget.Options{SessionID: existing.ID})

			Expect(client.Start(ctx)).To(Succeed())
			Expect(client.SendMessage(ctx, "resumed")).To(Succeed())

			Eventually(func() int {
				events, err := store.ListEvents(context.Background(), existing.ID, 0, 0)
				Expect(err).NotTo(HaveOccurred())
				return len(events)
			}, 3*time.Second).Should(BeNumerically(">=", 1))
		})
	})

	Describe("lifecycle", func() {
		It("rejects sends before Start", func() {
			client = newClient(widget.Options{AgentID: "agent-1"})

			err := client.SendMessage(ctx, "too early")

			Expect(err).To(MatchError(widget.ErrNotStarted))
		})

		It("discards the conversation when the agent changes", func() {
			client = newClient(widget.Options{AgentID: "agent-1"})
			Expect(client.Start(ctx)).To(Succeed())
			Expect(client.SendMessage(ctx, "hello")).To(Succeed())
			Eventually(func() int { return len(client.Snapshot().Messages) }, 3*time.Second).Should(Equal(2))

			Expect(client.UseAgent(ctx, "agent-2")).To(Succeed())

			Expect(client.Snapshot().Messages).To(BeEmpty())
			Expect(client.SendMessage(ctx, "fresh start")).To(Succeed())
			Eventually(func() int { return len(client.Snapshot().Messages) }, 3*time.Second).Should(Equal(2))
		})

		It("rejects sends after Stop", func() {
			client = newClient(widget.Options{AgentID: "agent-1"})
			Expect(client.Start(ctx)).To(Succeed())

			client.Stop()

			Expect(client.SendMessage(ctx, "too late")).To(MatchError(widget.ErrNotStarted))
		})
	})

	Describe("error surfacing", func() {
		It("surfaces a failed send and clears the pending bubble", func() {
			client = newClient(widget.Options{AgentID: "agent-1"})
			Expect(client.Start(ctx)).To(Succeed())

			server.Close()

			err := client.SendMessage(ctx, "into the void")
			Expect(err).To(HaveOccurred())
			Expect(client.Snapshot().Pending).To(BeNil())
			Eventually(client.Errors()).Should(Receive())
		})
	})
})
