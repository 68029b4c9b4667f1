package session_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/wflow/internal/clipboard"
	"github.com/opencode-ai/wflow/internal/executor"
	"github.com/opencode-ai/wflow/internal/journal"
	"github.com/opencode-ai/wflow/internal/prompt"
	"github.com/opencode-ai/wflow/internal/resolver"
	"github.com/opencode-ai/wflow/internal/session"
	"github.com/opencode-ai/wflow/pkg/types"
)

func strPtr(s string) *string { return &s }

func kinds(events []types.Event) []types.EventKind {
	out := make([]types.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// probe records the session state at the moment each event is appended.
type probe struct {
	journal.Journal
	mu     sync.Mutex
	state  func() types.State
	states []types.State
}

func (p *probe) Append(ctx context.Context, e types.Event) (types.Event, error) {
	if p.state != nil {
		p.mu.Lock()
		p.states = append(p.states, p.state())
		p.mu.Unlock()
	}
	return p.Journal.Append(ctx, e)
}

type brokenSink struct{ calls int }

func (b *brokenSink) Write(string) error {
	b.calls++
	return clipboard.ErrUnavailable
}

type panickingSink struct{}

func (panickingSink) Write(string) error { panic("clipboard exploded") }

var noEnv = session.WithEnvironment(session.Environment{User: "tester", Hostname: "box", Directory: "/work"})

var _ = Describe("Processor", func() {
	var (
		ctx  context.Context
		mem  *journal.Memory
		sink *clipboard.Memory
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = journal.NewMemory()
		sink = &clipboard.Memory{}
	})

	newSession := func(wf *types.Workflow, p prompt.Prompter, r executor.Runner, opts ...session.Option) *session.Processor {
		opts = append([]session.Option{noEnv}, opts...)
		return session.New(wf, mem, resolver.New(p, r), sink, opts...)
	}

	Describe("the echo scenario", func() {
		It("finalizes to the default when it is accepted", func() {
			wf := &types.Workflow{
				ID:        "echo",
				Name:      "Echo",
				Command:   "echo {{message}}",
				Arguments: []types.Argument{{Name: "message", Type: types.ArgText, Default: strPtr("hi")}},
			}
			s := newSession(wf, prompt.NewScripted(""), nil)
			Expect(s.State()).To(Equal(types.StateIdle))

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(types.StateCompleted))
			Expect(res.Command).To(Equal("echo hi"))
			Expect(res.Delivered).To(BeTrue())
			Expect(s.State()).To(Equal(types.StateCompleted))
			Expect(sink.Writes()).To(Equal([]string{"echo hi"}))

			events, err := mem.ReadAll(ctx, s.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(kinds(events)).To(Equal([]types.EventKind{
				types.EventSessionStarted,
				types.EventArgumentPrompted,
				types.EventArgumentResolved,
				types.EventCommandFinalized,
			}))
			Expect(events[0].Started.User).To(Equal("tester"))
			Expect(events[0].Started.Arguments).To(Equal([]string{"message"}))
			Expect(events[2].Resolved.FromDefault).To(BeTrue())
		})
	})

	Describe("defaults only", func() {
		It("renders every placeholder with its default", func() {
			wf := &types.Workflow{
				ID:      "k8s/logs",
				Command: "kubectl logs -n {{ns}} --tail={{lines}} --follow={{follow}} {{pod}}",
				Arguments: []types.Argument{
					{Name: "ns", Type: types.ArgText, Default: strPtr("default")},
					{Name: "lines", Type: types.ArgNumber, Default: strPtr("100")},
					{Name: "follow", Type: types.ArgBoolean, Default: strPtr("false")},
					{Name: "pod", Type: types.ArgEnum, EnumVariants: []string{"api", "web"}, Default: strPtr("web")},
				},
			}
			s := newSession(wf, prompt.NewScripted("", "", "", ""), nil)

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Command).To(Equal("kubectl logs -n default --tail=100 --follow=false web"))
		})
	})

	Describe("an empty workflow", func() {
		It("finalizes the template unchanged", func() {
			wf := &types.Workflow{ID: "uptime", Command: "uptime"}
			s := newSession(wf, prompt.NewScripted(), nil)

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Command).To(Equal("uptime"))

			events, _ := mem.ReadAll(ctx, s.ID())
			Expect(kinds(events)).To(Equal([]types.EventKind{types.EventSessionStarted, types.EventCommandFinalized}))
		})
	})

	Describe("journal replay", func() {
		It("reconstructs the command the session returned", func() {
			runner := executor.RunnerFunc(func(context.Context, string) (executor.Output, error) {
				return executor.Output{Stdout: "main\nfeature/login\n"}, nil
			})
			wf := &types.Workflow{
				ID:      "git/checkout",
				Command: "git checkout {{branch}} && git pull --depth={{depth}}",
				Arguments: []types.Argument{
					{Name: "branch", Type: types.ArgEnum, EnumCommand: "git branch --format='%(refname:short)'"},
					{Name: "depth", Type: types.ArgNumber},
				},
			}
			s := newSession(wf, prompt.NewScripted("feature/login", "x", "5"), runner)

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			events, err := mem.ReadAll(ctx, s.ID())
			Expect(err).NotTo(HaveOccurred())
			outcome, err := journal.Replay(events)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.State).To(Equal(types.StateCompleted))
			Expect(outcome.Command).To(Equal(res.Command))
			Expect(outcome.Verified()).To(BeTrue())
			Expect(outcome.Arguments).To(Equal(res.Arguments))
			Expect(outcome.EnumCommands).To(Equal(1))
			Expect(outcome.Prompts).To(Equal(3))
		})
	})

	Describe("a failing dynamic enum", func() {
		It("fails the session without finalizing", func() {
			runner := executor.RunnerFunc(func(context.Context, string) (executor.Output, error) {
				return executor.Output{ExitCode: 2, Stderr: "no such context"}, nil
			})
			wf := &types.Workflow{
				ID:        "k8s/pods",
				Command:   "kubectl describe {{pod}}",
				Arguments: []types.Argument{{Name: "pod", Type: types.ArgEnum, EnumCommand: "kubectl get pods"}},
			}
			s := newSession(wf, prompt.NewScripted(), runner)

			res, err := s.Run(ctx)
			Expect(err).To(HaveOccurred())
			var enumErr *resolver.EnumCommandError
			Expect(errors.As(err, &enumErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("no such context"))

			Expect(res.State).To(Equal(types.StateFailed))
			Expect(res.Failure.Kind).To(Equal(types.FailureEnumCommand))
			Expect(res.Failure.Index).To(Equal(0))
			Expect(res.Failure.Argument).To(Equal("pod"))
			Expect(sink.Writes()).To(BeEmpty())

			events, _ := mem.ReadAll(ctx, s.ID())
			Expect(kinds(events)).To(Equal([]types.EventKind{
				types.EventSessionStarted,
				types.EventEnumCommandExecuted,
				types.EventResolutionFailed,
			}))
			Expect(kinds(events)).NotTo(ContainElement(types.EventCommandFinalized))
			Expect(events[2].Failed.Kind).To(Equal(types.FailureEnumCommand))
		})
	})

	Describe("an unbound placeholder", func() {
		It("fails at finalize time naming the placeholder", func() {
			wf := &types.Workflow{
				ID:        "typo",
				Command:   "echo {{mesage}}",
				Arguments: []types.Argument{{Name: "message", Type: types.ArgText}},
			}
			s := newSession(wf, prompt.NewScripted("hello"), nil)

			res, err := s.Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("mesage"))
			Expect(res.Failure.Kind).To(Equal(types.FailureUnboundPlaceholder))
			Expect(res.Failure.Index).To(Equal(-1))
			Expect(res.Arguments).To(HaveLen(1))

			events, _ := mem.ReadAll(ctx, s.ID())
			outcome, err := journal.Replay(events)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.State).To(Equal(types.StateFailed))
			Expect(outcome.Failure.Kind).To(Equal(types.FailureUnboundPlaceholder))
		})
	})

	Describe("state transitions", func() {
		It("stays in place while re-prompting", func() {
			wf := &types.Workflow{
				ID:      "n",
				Command: "seq {{a}} {{b}}",
				Arguments: []types.Argument{
					{Name: "a", Type: types.ArgNumber},
					{Name: "b", Type: types.ArgNumber},
				},
			}
			pr := &probe{Journal: mem}
			s := session.New(wf, pr, resolver.New(prompt.NewScripted("one", "1", "2"), nil), sink, noEnv)
			pr.state = s.State

			_, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			events, _ := mem.ReadAll(ctx, s.ID())
			Expect(kinds(events)).To(Equal([]types.EventKind{
				types.EventSessionStarted,
				types.EventArgumentPrompted,
				types.EventArgumentPrompted,
				types.EventArgumentResolved,
				types.EventArgumentPrompted,
				types.EventArgumentResolved,
				types.EventCommandFinalized,
			}))
			Expect(pr.states).To(Equal([]types.State{
				types.StateIdle,
				types.Resolving(0),
				types.Resolving(0),
				types.Resolving(0),
				types.Resolving(1),
				types.Resolving(1),
				types.StateFinalizing,
			}))
		})

		It("rejects a second run", func() {
			s := newSession(&types.Workflow{ID: "x", Command: "true"}, prompt.NewScripted(), nil)
			_, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Run(ctx)
			Expect(err).To(MatchError(session.ErrSessionTerminal))
			Expect(sink.Writes()).To(HaveLen(1))
		})
	})

	Describe("cancellation", func() {
		It("records an aborted prompt as cancelled", func() {
			wf := &types.Workflow{
				ID:        "c",
				Command:   "echo {{x}}",
				Arguments: []types.Argument{{Name: "x", Type: types.ArgText}},
			}
			s := newSession(wf, prompt.NewScripted().Then(prompt.Answer{Err: prompt.ErrAborted}), nil)

			res, err := s.Run(ctx)
			Expect(err).To(MatchError(prompt.ErrAborted))
			Expect(res.Failure.Kind).To(Equal(types.FailureCancelled))
		})

		It("journals the failure even when the context is done", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			wf := &types.Workflow{
				ID:        "c",
				Command:   "echo {{x}}",
				Arguments: []types.Argument{{Name: "x", Type: types.ArgText}},
			}
			s := newSession(wf, prompt.NewScripted("v"), nil)

			res, err := s.Run(cctx)
			Expect(err).To(HaveOccurred())
			Expect(res.Failure.Kind).To(Equal(types.FailureCancelled))

			events, _ := mem.ReadAll(ctx, s.ID())
			Expect(events).NotTo(BeEmpty())
			Expect(events[len(events)-1].Kind).To(Equal(types.EventResolutionFailed))
		})
	})

	Describe("clipboard delivery", func() {
		It("completes with Delivered false when the clipboard is unavailable", func() {
			broken := &brokenSink{}
			wf := &types.Workflow{ID: "x", Command: "make"}
			s := session.New(wf, mem, resolver.New(prompt.NewScripted(), nil), broken, noEnv)

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(types.StateCompleted))
			Expect(res.Command).To(Equal("make"))
			Expect(res.Delivered).To(BeFalse())
			Expect(broken.calls).To(Equal(1))
		})

		It("keeps the completed outcome when the sink panics", func() {
			wf := &types.Workflow{ID: "x", Command: "make"}
			s := session.New(wf, mem, resolver.New(prompt.NewScripted(), nil), panickingSink{}, noEnv)

			res, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(types.StateCompleted))
			Expect(res.Command).To(Equal("make"))
			Expect(res.Delivered).To(BeFalse())
			Expect(s.State()).To(Equal(types.StateCompleted))

			events, err := mem.ReadAll(ctx, s.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(events[len(events)-1].Kind).To(Equal(types.EventCommandFinalized))
			for _, e := range events {
				Expect(e.Kind).NotTo(Equal(types.EventResolutionFailed))
			}
			outcome, err := journal.Replay(events)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.State).To(Equal(types.StateCompleted))
			Expect(outcome.Command).To(Equal("make"))
		})
	})

	Describe("chained sessions", func() {
		It("records the parent and depth", func() {
			s := newSession(&types.Workflow{ID: "child", Command: "ls"}, prompt.NewScripted(), nil,
				session.WithParent("ses_parent", 2), session.WithID("ses_child"))
			Expect(s.ID()).To(Equal("ses_child"))

			_, err := s.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			events, _ := mem.ReadAll(ctx, "ses_child")
			Expect(events[0].Started.ParentSession).To(Equal("ses_parent"))
			Expect(events[0].Started.Depth).To(Equal(2))
		})
	})

	Describe("concurrent sessions", func() {
		It("keep resolved arguments and journals apart", func() {
			good := &types.Workflow{
				ID:        "good",
				Command:   "echo {{v}}",
				Arguments: []types.Argument{{Name: "v", Type: types.ArgText}},
			}
			bad := &types.Workflow{
				ID:        "bad",
				Command:   "echo {{v}}",
				Arguments: []types.Argument{{Name: "v", Type: types.ArgEnum, EnumCommand: "false"}},
			}
			failing := executor.RunnerFunc(func(context.Context, string) (executor.Output, error) {
				return executor.Output{ExitCode: 1}, nil
			})

			const n = 10
			var wg sync.WaitGroup
			goods := make([]*session.Processor, n)
			bads := make([]*session.Processor, n)
			for i := 0; i < n; i++ {
				goods[i] = newSession(good, prompt.NewScripted("good"), nil)
				bads[i] = newSession(bad, prompt.NewScripted("bad"), failing)
				for _, s := range []*session.Processor{goods[i], bads[i]} {
					wg.Add(1)
					go func(s *session.Processor) {
						defer GinkgoRecover()
						defer wg.Done()
						_, _ = s.Run(ctx)
					}(s)
				}
			}
			wg.Wait()

			for i := 0; i < n; i++ {
				Expect(goods[i].State()).To(Equal(types.StateCompleted))
				Expect(goods[i].Resolved()).To(Equal([]types.ResolvedArgument{{Name: "v", Value: "good"}}))
				Expect(bads[i].State()).To(Equal(types.StateFailed))
				Expect(bads[i].Resolved()).To(BeEmpty())

				events, err := mem.ReadAll(ctx, goods[i].ID())
				Expect(err).NotTo(HaveOccurred())
				for j, e := range events {
					Expect(e.SessionID).To(Equal(goods[i].ID()))
					Expect(e.Sequence).To(Equal(int64(j + 1)))
				}
				outcome, err := journal.Replay(events)
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Command).To(Equal("echo good"))
			}
			Expect(sink.Writes()).To(HaveLen(n))
		})
	})

	Describe("FailureKindOf", func() {
		DescribeTable("classifies errors",
			func(err error, want types.FailureKind) {
				Expect(session.FailureKindOf(err)).To(Equal(want))
			},
			Entry("enum", &resolver.StepError{Err: &resolver.EnumCommandError{Argument: "a"}}, types.FailureEnumCommand),
			Entry("cancelled", &resolver.StepError{Err: &resolver.CancelledError{Argument: "a"}}, types.FailureCancelled),
			Entry("context", context.Canceled, types.FailureCancelled),
			Entry("other", errors.New("disk full"), types.FailureInternal),
		)
	})
})
