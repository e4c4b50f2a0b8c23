package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/google/uuid"
)

const defaultMutationRetries = 3

var ErrQueueClosed = errors.New("mutation queue is closed")

type MutationOptions struct {
	// MaxRetries bounds transient retries per mutation. Zero picks the
	// default, a negative value disables retries.
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
	Events     *EventBus
	Clock      ports.Clock
	Logger     *slog.Logger
	Metrics    ports.Metrics
}

// Ticket tracks one queued mutation until the server confirms or rejects it.
type Ticket struct {
	kind domain.MutationKind
	key  string
	done chan struct{}

	mu    sync.Mutex
	msgID domain.MessageID
	err   error
}

func newTicket(kind domain.MutationKind, key string, id domain.MessageID) *Ticket {
	return &Ticket{kind: kind, key: key, msgID: id, done: make(chan struct{})}
}

func resolvedTicket(kind domain.MutationKind, id domain.MessageID) *Ticket {
	t := newTicket(kind, "", id)
	close(t.done)
	return t
}

func (t *Ticket) Kind() domain.MutationKind { return t.kind }

// IdempotencyKey is empty for mutations that needed no network call.
func (t *Ticket) IdempotencyKey() string { return t.key }

func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err is nil until the ticket is done.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// MessageID is the local id of a send until the server assigns one.
func (t *Ticket) MessageID() domain.MessageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.msgID
}

func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticket) resolve(id domain.MessageID, err error) {
	t.mu.Lock()
	if id != "" {
		t.msgID = id
	}
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// messageBase is the server-confirmed state of a target that rollbacks
// return to.
type messageBase struct {
	body     string
	editedAt time.Time
	reaction domain.ReactionKind
}

func baseOf(msg *domain.Message, self string) messageBase {
	return messageBase{body: msg.Body, editedAt: msg.EditedAt, reaction: msg.Reactions[self]}
}

// after is the base once m was confirmed with rec.
func (b messageBase) after(m domain.PendingMutation, rec domain.MessageRecord) messageBase {
	switch m.Kind {
	case domain.MutationEdit:
		b.body, b.editedAt = m.Body, m.CreatedAt
		if rec.ID != "" {
			b.body = rec.Body
			if !rec.EditedAt.IsZero() {
				b.editedAt = rec.EditedAt
			}
		}
	case domain.MutationDelete:
		b.body = ""
	case domain.MutationReact:
		b.reaction = m.Reaction
	case domain.MutationUnreact:
		b.reaction = ""
	}
	return b
}

// mutationJob is a queued mutation plus the confirmed state it replaced.
type mutationJob struct {
	mutation domain.PendingMutation
	ref      domain.ConversationRef
	ticket   *Ticket
	prev     messageBase
}

// mutationLane serializes the jobs of one target. base starts as the target's
// state when the lane opened and moves with every confirmed job, so queued
// jobs never roll back to a value the server did not accept.
type mutationLane struct {
	jobs []*mutationJob
	base messageBase
}

// MutationQueue applies user writes optimistically and forwards them to the
// remote, one network call at a time per message. Sends serialize per
// conversation.
type MutationQueue struct {
	gateway ports.ChatGateway
	creds   CredentialSource
	model   *Model
	opts    MutationOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	lanes  map[string]*mutationLane
	closed bool
}

func NewMutationQueue(gateway ports.ChatGateway, creds CredentialSource, model *Model, opts MutationOptions) *MutationQueue {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMutationRetries
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MutationQueue{
		gateway: gateway,
		creds:   creds,
		model:   model,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make(map[string]*mutationLane),
	}
}

// Send posts a new message. The ticket carries the local id until the server
// confirms it.
func (q *MutationQueue) Send(conversation domain.ConversationID, body string) (*Ticket, error) {
	ticket, err := q.send(conversation, body, "")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return ticket, nil
}

// Reply posts body to the reply thread of parent. Only channel conversations
// have reply threads.
func (q *MutationQueue) Reply(conversation domain.ConversationID, parent domain.MessageID, body string) (*Ticket, error) {
	ticket, err := q.send(conversation, body, parent)
	if err != nil {
		return nil, fmt.Errorf("reply to message: %w", err)
	}
	return ticket, nil
}

func (q *MutationQueue) send(conversation domain.ConversationID, body string, parent domain.MessageID) (*Ticket, error) {
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrEmptyBody
	}
	self, err := q.self()
	if err != nil {
		return nil, err
	}

	var job *mutationJob
	err = q.model.update(conversation, func(state *conversationState) error {
		if parent != "" {
			if state.conv.Kind != domain.ConversationChannel {
				return domain.ErrReplyUnsupported
			}
			if _, err := target(state, parent, self, false); err != nil {
				return err
			}
		}

		key := uuid.NewString()
		now := q.opts.Clock.Now()
		local := domain.MessageID(domain.LocalIDPrefix + key)
		job = q.newJob(state, domain.PendingMutation{
			Kind:           domain.MutationSend,
			IdempotencyKey: key,
			ConversationID: conversation,
			MessageID:      local,
			ReplyTo:        parent,
			Body:           body,
			CreatedAt:      now,
		})
		if err := q.enqueueLocked(job); err != nil {
			return err
		}

		msg := domain.Message{
			ID:             local,
			ConversationID: conversation,
			Sender:         domain.Sender{ID: self},
			Body:           body,
			CreatedAt:      now,
			ReplyTo:        parent,
			Pending:        domain.MutationSend,
			ClientKey:      key,
		}
		state.messages[local] = &msg
		state.touch(msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.updated(conversation)
	return job.ticket, nil
}

// Edit replaces the body of a message authored by the signed-in user.
func (q *MutationQueue) Edit(conversation domain.ConversationID, id domain.MessageID, body string) (*Ticket, error) {
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrEmptyBody
	}
	self, err := q.self()
	if err != nil {
		return nil, err
	}

	var job *mutationJob
	err = q.model.update(conversation, func(state *conversationState) error {
		msg, err := target(state, id, self, true)
		if err != nil {
			return err
		}
		now := q.opts.Clock.Now()
		job = q.newJob(state, domain.PendingMutation{
			Kind:           domain.MutationEdit,
			IdempotencyKey: uuid.NewString(),
			ConversationID: conversation,
			MessageID:      id,
			Body:           body,
			CreatedAt:      now,
		})
		job.prev = baseOf(msg, self)
		if err := q.enqueueLocked(job); err != nil {
			return err
		}

		msg.Body = body
		msg.EditedAt = now
		msg.Pending = domain.MutationEdit
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	q.updated(conversation)
	return job.ticket, nil
}

// Delete soft-deletes a message authored by the signed-in user.
func (q *MutationQueue) Delete(conversation domain.ConversationID, id domain.MessageID) (*Ticket, error) {
	self, err := q.self()
	if err != nil {
		return nil, err
	}

	var job *mutationJob
	err = q.model.update(conversation, func(state *conversationState) error {
		msg, err := target(state, id, self, true)
		if err != nil {
			return err
		}
		job = q.newJob(state, domain.PendingMutation{
			Kind:           domain.MutationDelete,
			IdempotencyKey: uuid.NewString(),
			ConversationID: conversation,
			MessageID:      id,
			CreatedAt:      q.opts.Clock.Now(),
		})
		job.prev = baseOf(msg, self)
		if err := q.enqueueLocked(job); err != nil {
			return err
		}

		msg.Deleted = true
		msg.Body = ""
		msg.Pending = domain.MutationDelete
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}
	q.updated(conversation)
	return job.ticket, nil
}

// React sets the signed-in user's reaction. Setting the reaction already in
// place resolves immediately without a network call.
func (q *MutationQueue) React(conversation domain.ConversationID, id domain.MessageID, kind domain.ReactionKind) (*Ticket, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidReaction, kind)
	}
	return q.reaction(conversation, id, domain.MutationReact, kind)
}

// Unreact removes the signed-in user's reaction, if any.
func (q *MutationQueue) Unreact(conversation domain.ConversationID, id domain.MessageID) (*Ticket, error) {
	return q.reaction(conversation, id, domain.MutationUnreact, "")
}

func (q *MutationQueue) reaction(conversation domain.ConversationID, id domain.MessageID, kind domain.MutationKind, reaction domain.ReactionKind) (*Ticket, error) {
	self, err := q.self()
	if err != nil {
		return nil, err
	}

	var (
		job  *mutationJob
		noop bool
	)
	err = q.model.update(conversation, func(state *conversationState) error {
		msg, err := target(state, id, self, false)
		if err != nil {
			return err
		}
		current := msg.Reactions[self]
		if current == reaction {
			noop = true
			return nil
		}

		mutation := domain.PendingMutation{
			Kind:           kind,
			IdempotencyKey: uuid.NewString(),
			ConversationID: conversation,
			MessageID:      id,
			Reaction:       reaction,
			CreatedAt:      q.opts.Clock.Now(),
		}
		if kind == domain.MutationUnreact {
			mutation.Reaction = current
		}
		job = q.newJob(state, mutation)
		job.prev = baseOf(msg, self)
		if err := q.enqueueLocked(job); err != nil {
			return err
		}

		setReaction(msg, self, reaction)
		msg.Pending = kind
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s message: %w", kind, err)
	}
	if noop {
		q.opts.Metrics.ObserveMutation(kind, ports.OutcomeCoalesced)
		return resolvedTicket(kind, id), nil
	}
	q.updated(conversation)
	return job.ticket, nil
}

// Close cancels outstanding network calls and waits for the workers. Queued
// mutations are rolled back.
func (q *MutationQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *MutationQueue) self() (string, error) {
	self := q.model.Self()
	if self == "" {
		return "", fmt.Errorf("%w: user not identified", domain.ErrNotAuthenticated)
	}
	return self, nil
}

// target resolves a message a mutation may apply to. Callers hold the
// conversation lock.
func target(state *conversationState, id domain.MessageID, self string, authored bool) (*domain.Message, error) {
	msg, ok := state.messages[id]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %q", domain.ErrMessageNotFound, id)
	case id.IsLocal():
		return nil, fmt.Errorf("%w: %q", domain.ErrMessagePending, id)
	case msg.Deleted:
		return nil, fmt.Errorf("%w: %q", domain.ErrMessageDeleted, id)
	case authored && msg.Sender.ID != self:
		return nil, fmt.Errorf("%w: %q", domain.ErrNotAuthor, id)
	}
	return msg, nil
}

func setReaction(msg *domain.Message, reactor string, kind domain.ReactionKind) {
	if kind == "" {
		delete(msg.Reactions, reactor)
		if len(msg.Reactions) == 0 {
			msg.Reactions = nil
		}
		return
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]domain.ReactionKind)
	}
	msg.Reactions[reactor] = kind
}

func (q *MutationQueue) newJob(state *conversationState, mutation domain.PendingMutation) *mutationJob {
	return &mutationJob{
		mutation: mutation,
		ref:      state.conv.Ref(),
		ticket:   newTicket(mutation.Kind, mutation.IdempotencyKey, mutation.MessageID),
	}
}

// enqueueLocked appends job to its lane and starts a worker for idle lanes.
// Callers hold the conversation lock, which is always taken before q.mu.
func (q *MutationQueue) enqueueLocked(job *mutationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	key := job.mutation.Target()
	lane, busy := q.lanes[key]
	if !busy {
		lane = &mutationLane{base: job.prev}
		q.lanes[key] = lane
	}
	lane.jobs = append(lane.jobs, job)
	if !busy {
		q.wg.Add(1)
		go q.drain(key)
	}
	return nil
}

func (q *MutationQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		lane := q.lanes[key]
		job := lane.jobs[0]
		job.prev = lane.base
		q.mu.Unlock()

		rec, err := q.execute(job)
		if !q.finish(job, rec, err) {
			return
		}
	}
}

// execute performs the network side of job. No model lock is held here.
func (q *MutationQueue) execute(job *mutationJob) (domain.MessageRecord, error) {
	m := job.mutation
	if m.Kind != domain.MutationSend && m.Kind != domain.MutationDelete && q.targetGone(m) {
		return domain.MessageRecord{}, fmt.Errorf("%w: message %q was deleted", domain.ErrConflict, m.MessageID)
	}

	policy := retryPolicy{
		attempts: q.opts.MaxRetries,
		base:     q.opts.RetryBase,
		max:      q.opts.RetryMax,
		logger:   q.opts.Logger,
	}

	var rec domain.MessageRecord
	err := policy.run(q.ctx, string(m.Kind)+" "+string(m.MessageID), func() error {
		job.mutation.Attempts++
		return q.creds.WithCredential(q.ctx, func(cred *domain.Credential) error {
			var err error
			rec, err = q.call(cred, job)
			return err
		})
	})
	return rec, err
}

func (q *MutationQueue) call(cred *domain.Credential, job *mutationJob) (domain.MessageRecord, error) {
	ctx, m := q.ctx, job.mutation
	switch m.Kind {
	case domain.MutationSend:
		if m.ReplyTo != "" {
			return q.gateway.ReplyToMessage(ctx, cred, job.ref, m.ReplyTo, m.Body, m.IdempotencyKey)
		}
		return q.gateway.CreateMessage(ctx, cred, job.ref, m.Body, m.IdempotencyKey)
	case domain.MutationEdit:
		return q.gateway.EditMessage(ctx, cred, job.ref, m.MessageID, m.Body)
	case domain.MutationDelete:
		err := q.gateway.SoftDeleteMessage(ctx, cred, job.ref, m.MessageID)
		if errors.Is(err, domain.ErrConflict) {
			// already gone remotely
			err = nil
		}
		return domain.MessageRecord{}, err
	case domain.MutationReact:
		if prev := job.prev.reaction; prev != "" && prev != m.Reaction {
			if err := unset(ctx, q.gateway, cred, job.ref, m.MessageID, prev); err != nil {
				return domain.MessageRecord{}, err
			}
		}
		return domain.MessageRecord{}, q.gateway.SetReaction(ctx, cred, job.ref, m.MessageID, m.Reaction)
	case domain.MutationUnreact:
		if job.prev.reaction == "" {
			return domain.MessageRecord{}, nil
		}
		return domain.MessageRecord{}, unset(ctx, q.gateway, cred, job.ref, m.MessageID, job.prev.reaction)
	}
	return domain.MessageRecord{}, fmt.Errorf("unsupported mutation %q", m.Kind)
}

// unset treats an already absent reaction as removed.
func unset(ctx context.Context, gateway ports.ChatGateway, cred *domain.Credential, ref domain.ConversationRef, id domain.MessageID, kind domain.ReactionKind) error {
	err := gateway.UnsetReaction(ctx, cred, ref, id, kind)
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	return err
}

func (q *MutationQueue) targetGone(m domain.PendingMutation) bool {
	msg, ok := q.model.Message(m.ConversationID, m.MessageID)
	return !ok || msg.Deleted
}

// finish reconciles or rolls back job, resolves its ticket and pops it from
// its lane. It reports whether the lane has more work.
func (q *MutationQueue) finish(job *mutationJob, rec domain.MessageRecord, err error) bool {
	m := job.mutation
	confirmedID := m.MessageID
	more := false

	updateErr := q.model.update(m.ConversationID, func(state *conversationState) error {
		if err == nil {
			err = q.confirm(state, job, rec)
			if err == nil && m.Kind == domain.MutationSend {
				confirmedID = rec.ID
			}
		}
		if err != nil {
			rollback(state, job, q.model.Self())
		}
		more = q.pop(state, job, err == nil, rec)
		return nil
	})
	if updateErr != nil {
		more = q.pop(nil, job, false, rec)
	}

	if err != nil {
		err = q.failure(job, err)
		confirmedID = ""
	} else {
		q.opts.Metrics.ObserveMutation(m.Kind, ports.OutcomeOK)
	}
	job.ticket.resolve(confirmedID, err)
	q.updated(m.ConversationID)
	return more
}

// confirm swaps optimistic values for the server's. A target deleted while
// the call was in flight turns the mutation into a conflict.
func (q *MutationQueue) confirm(state *conversationState, job *mutationJob, rec domain.MessageRecord) error {
	m := job.mutation
	if m.Kind == domain.MutationSend {
		delete(state.messages, m.MessageID)
		if _, seen := state.messages[rec.ID]; !seen {
			msg := rec.ToMessage(state.conv.ID)
			if msg.ClientKey == "" {
				msg.ClientKey = m.IdempotencyKey
			}
			state.messages[msg.ID] = &msg
			state.touch(msg)
		}
		return nil
	}

	msg, ok := state.messages[m.MessageID]
	if !ok {
		return fmt.Errorf("%w: message %q disappeared", domain.ErrConflict, m.MessageID)
	}
	if m.Kind != domain.MutationDelete && msg.Deleted {
		return fmt.Errorf("%w: message %q was deleted", domain.ErrConflict, m.MessageID)
	}
	if m.Kind == domain.MutationEdit && msg.Body == m.Body && rec.ID != "" {
		msg.Body = rec.Body
		if !rec.EditedAt.IsZero() {
			msg.EditedAt = rec.EditedAt
		}
		if rec.ModifiedAt.After(msg.ModifiedAt) {
			msg.ModifiedAt = rec.ModifiedAt
		}
	}
	return nil
}

// rollback restores the confirmed state job replaced, as long as nothing newer
// has overwritten its optimistic value since. A deletion the server reported
// on its own is never undone.
func rollback(state *conversationState, job *mutationJob, self string) {
	m := job.mutation
	if m.Kind == domain.MutationSend {
		delete(state.messages, m.MessageID)
		state.recomputeActivity()
		return
	}

	msg, ok := state.messages[m.MessageID]
	if !ok {
		return
	}
	switch m.Kind {
	case domain.MutationEdit:
		if !msg.Deleted && msg.Body == m.Body && msg.EditedAt.Equal(m.CreatedAt) {
			msg.Body, msg.EditedAt = job.prev.body, job.prev.editedAt
		}
	case domain.MutationDelete:
		if msg.Deleted && !state.deletedRemotely(m.MessageID) {
			msg.Deleted, msg.Body = false, job.prev.body
		}
	case domain.MutationReact:
		if msg.Reactions[self] == m.Reaction {
			setReaction(msg, self, job.prev.reaction)
		}
	case domain.MutationUnreact:
		if _, has := msg.Reactions[self]; !has {
			setReaction(msg, self, job.prev.reaction)
		}
	}
}

// pop removes job from its lane, moves the lane base past a confirmed job
// and refreshes the pending marker of its target. state is nil when the
// conversation is gone.
func (q *MutationQueue) pop(state *conversationState, job *mutationJob, confirmed bool, rec domain.MessageRecord) bool {
	key := job.mutation.Target()

	q.mu.Lock()
	defer q.mu.Unlock()
	lane := q.lanes[key]
	if confirmed {
		lane.base = lane.base.after(job.mutation, rec)
	}
	lane.jobs = lane.jobs[1:]
	more := len(lane.jobs) > 0
	if !more {
		delete(q.lanes, key)
	}

	if state != nil && job.mutation.Kind != domain.MutationSend {
		if msg, ok := state.messages[job.mutation.MessageID]; ok {
			msg.Pending = domain.MutationNone
			if more {
				msg.Pending = lane.jobs[len(lane.jobs)-1].mutation.Kind
			}
		}
	}
	return more
}

func (q *MutationQueue) failure(job *mutationJob, err error) error {
	m := job.mutation
	kind, outcome := domain.MutationTransient, ports.OutcomeError
	if errors.Is(err, domain.ErrConflict) {
		kind, outcome = domain.MutationConflict, ports.OutcomeConflict
	}
	q.opts.Metrics.ObserveMutation(m.Kind, outcome)
	q.opts.Logger.Warn("mutation failed",
		"kind", m.Kind,
		"conversation", m.ConversationID,
		"message", m.MessageID,
		"outcome", outcome,
		"attempts", m.Attempts,
		"err", err,
	)

	mutErr := &domain.MutationError{Kind: kind, Mutation: m.Kind, MessageID: m.MessageID, Attempts: m.Attempts, Err: err}
	q.opts.Events.Publish(domain.Event{
		Kind:           domain.EventMutationFailed,
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		Mutation:       m.Kind,
		Err:            mutErr,
	})
	return mutErr
}

func (q *MutationQueue) updated(id domain.ConversationID) {
	q.opts.Events.Publish(domain.Event{Kind: domain.EventConversationUpdated, ConversationID: id})
}
